// Package history persists trial records: the ordered trial-history
// file pair used for resume and inspection, a JSONL trace for streaming
// consumers, and a sqlite archive for cross-run queries.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/cwbudde/hypertune/space"
	"github.com/cwbudde/hypertune/trial"
)

const (
	// HistoryFile maps string-encoded objective values to the
	// parameters that produced them, in recording order.
	HistoryFile = "iterations.json"

	// SortedHistoryFile is the same mapping ordered by ascending value
	// for quick best-N inspection.
	SortedHistoryFile = "iterations_sorted.json"
)

// Entry pairs one store key with the parameters that produced it.
type Entry struct {
	Key    string
	Value  float64
	Params space.Params
}

// Record is an ordered trial history. JSON form is a single object
// whose keys are string-encoded objective values (with the store's
// collision suffixes) and whose values are parameter mappings in
// canonical order.
type Record struct {
	Entries []Entry
}

// FromStore snapshots a result store in recording order.
func FromStore(s *trial.Store) *Record {
	trials := s.All()
	keys := s.Keys()
	r := &Record{Entries: make([]Entry, len(trials))}
	for i, t := range trials {
		r.Entries[i] = Entry{Key: keys[i], Value: t.Value, Params: t.Params}
	}
	return r
}

// Len returns the number of entries.
func (r *Record) Len() int { return len(r.Entries) }

// Best returns the minimum-value entry, earliest position winning ties.
func (r *Record) Best() (Entry, bool) {
	if len(r.Entries) == 0 {
		return Entry{}, false
	}
	best := r.Entries[0]
	for _, e := range r.Entries[1:] {
		if e.Value < best.Value {
			best = e
		}
	}
	return best, true
}

// Sorted returns a copy ordered by ascending value, original position
// breaking ties.
func (r *Record) Sorted() *Record {
	out := &Record{Entries: make([]Entry, len(r.Entries))}
	copy(out.Entries, r.Entries)
	sort.SliceStable(out.Entries, func(i, j int) bool {
		return out.Entries[i].Value < out.Entries[j].Value
	})
	return out
}

// Rebuild reconstructs trials from the record, coercing every parameter
// back to its dimension's value type. Indexes follow record order, so a
// rebuilt store agrees with the live run that wrote the file.
func (r *Record) Rebuild(sp *space.Space) ([]trial.Trial, error) {
	out := make([]trial.Trial, len(r.Entries))
	for i, e := range r.Entries {
		p, err := sp.Coerce(e.Params)
		if err != nil {
			return nil, fmt.Errorf("history entry %q: %w", e.Key, err)
		}
		out[i] = trial.Trial{Index: i, Params: p, Value: e.Value}
	}
	return out, nil
}

// MarshalJSON writes the entries as one object with keys in entry order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		params, err := json.Marshal(e.Params)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Key, err)
		}
		buf.Write(params)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving its key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("history: expected JSON object, got %v", tok)
	}
	var entries []Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("history: expected string key, got %v", keyTok)
		}
		value, err := trial.ParseKey(key)
		if err != nil {
			return fmt.Errorf("history key %q: %w", key, err)
		}
		var params space.Params
		if err := dec.Decode(&params); err != nil {
			return fmt.Errorf("history key %q: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: value, Params: params})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	r.Entries = entries
	return nil
}

// Save writes the recording-order history file under dir, atomically.
func (r *Record) Save(dir string) error {
	return writeJSON(filepath.Join(dir, HistoryFile), r)
}

// SaveSorted writes the value-sorted variant under dir, atomically.
func (r *Record) SaveSorted(dir string) error {
	return writeJSON(filepath.Join(dir, SortedHistoryFile), r.Sorted())
}

// Load reads a history file written by Save or SaveSorted.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	r := &Record{}
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r, nil
}

// writeJSON marshals v indented and lands it via the temp-file-and-
// rename pattern, so readers never observe a partial file.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to indent history: %w", err)
	}
	buf.WriteByte('\n')

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp history file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}

	slog.Debug("history saved", "path", path)
	return nil
}
