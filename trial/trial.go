// Package trial holds evaluation records and the append-only store the
// orchestrator reads best-so-far answers from.
package trial

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/hypertune/space"
)

// Trial is one objective evaluation. Immutable once recorded.
type Trial struct {
	Index  int          `json:"index"`
	Params space.Params `json:"params"`
	Value  float64      `json:"value"`
	At     time.Time    `json:"at"`
}

// New stamps a trial with the current time.
func New(index int, params space.Params, value float64) Trial {
	return Trial{Index: index, Params: params, Value: value, At: time.Now()}
}

// Store accumulates trials in recording order and keeps a value-keyed
// index for lookups. Appends only; nothing is ever rewritten or
// re-sorted in place.
type Store struct {
	trials []Trial
	keys   []string
	byKey  map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byKey: make(map[string]int)}
}

// Key renders an objective value as its record key.
func Key(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}

// ParseKey recovers the objective value from a record key, ignoring any
// disambiguation suffix.
func ParseKey(key string) (float64, error) {
	if i := strings.IndexByte(key, '_'); i >= 0 {
		key = key[:i]
	}
	return strconv.ParseFloat(key, 64)
}

// Record appends a trial and returns its assigned key. When a second
// trial lands on an already-used value key, the trial index is appended
// as a suffix so neither record is lost.
func (s *Store) Record(t Trial) string {
	key := Key(t.Value)
	if _, taken := s.byKey[key]; taken {
		key = key + "_" + strconv.Itoa(t.Index)
	}
	s.byKey[key] = len(s.trials)
	s.keys = append(s.keys, key)
	s.trials = append(s.trials, t)
	return key
}

// Len returns the number of recorded trials.
func (s *Store) Len() int { return len(s.trials) }

// Best returns the trial with the minimum objective value; on ties the
// earliest recorded trial wins. ok is false while the store is empty.
func (s *Store) Best() (Trial, bool) {
	if len(s.trials) == 0 {
		return Trial{}, false
	}
	best := s.trials[0]
	for _, t := range s.trials[1:] {
		if t.Value < best.Value {
			best = t
		}
	}
	return best, true
}

// All returns the trials in recording order.
func (s *Store) All() []Trial {
	out := make([]Trial, len(s.trials))
	copy(out, s.trials)
	return out
}

// Sorted returns a copy ordered by ascending value, ties by recording
// index.
func (s *Store) Sorted() []Trial {
	out := s.All()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// Keys returns the record keys in recording order, aligned with All.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Lookup returns the trial recorded under key.
func (s *Store) Lookup(key string) (Trial, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Trial{}, false
	}
	return s.trials[i], true
}
