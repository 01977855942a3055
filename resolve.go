package hypertune

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cwbudde/hypertune/internal/engine"
	"github.com/cwbudde/hypertune/internal/engine/enumerate"
	"github.com/cwbudde/hypertune/internal/engine/gp"
	"github.com/cwbudde/hypertune/internal/engine/parzen"
	"github.com/cwbudde/hypertune/internal/engine/study"
	"github.com/cwbudde/hypertune/space"
)

// Algorithm selects the search strategy.
type Algorithm string

const (
	Grid         Algorithm = "grid"
	Random       Algorithm = "random"
	Bayes        Algorithm = "bayes"
	TPE          Algorithm = "tpe"
	ATPE         Algorithm = "atpe"
	Evolutionary Algorithm = "evolutionary"
)

// Backend selects which engine family carries an algorithm.
type Backend string

const (
	NativeEnumeration Backend = "native-enumeration"
	ModelBased        Backend = "sequential-model-based"
	DensityRatio      Backend = "density-ratio-sequential"
	TrialStudy        Backend = "trial-study"
)

// compat lists the backends each algorithm may run on. The first entry
// is the default applied when no backend is configured.
var compat = map[Algorithm][]Backend{
	Grid:         {NativeEnumeration, TrialStudy},
	Random:       {NativeEnumeration, DensityRatio, TrialStudy},
	Bayes:        {ModelBased},
	TPE:          {DensityRatio, TrialStudy},
	ATPE:         {DensityRatio},
	Evolutionary: {TrialStudy},
}

// Algorithms returns every known algorithm in a stable order.
func Algorithms() []Algorithm {
	return []Algorithm{Grid, Random, Bayes, TPE, ATPE, Evolutionary}
}

// CompatibleBackends returns the backends alg may run on, default
// first. Backends without a registered engine are filtered out, so
// deregistering an engine removes it from the resolvable set.
func CompatibleBackends(alg Algorithm) []Backend {
	out := make([]Backend, 0, len(compat[alg]))
	for _, b := range compat[alg] {
		if _, ok := engines[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// ParseAlgorithm maps a config string onto an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Grid):
		return Grid, nil
	case string(Random):
		return Random, nil
	case string(Bayes), "bayesian":
		return Bayes, nil
	case string(TPE):
		return TPE, nil
	case string(ATPE):
		return ATPE, nil
	case string(Evolutionary), "evolution", "cmaes", "mayfly":
		return Evolutionary, nil
	}
	return "", &ConfigError{Field: "algorithm", Reason: fmt.Sprintf("unknown algorithm %q", s)}
}

// ParseBackend maps a config string onto a Backend. Short aliases cover
// the unwieldy canonical names.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(NativeEnumeration), "native":
		return NativeEnumeration, nil
	case string(ModelBased), "model", "gp", "bayes":
		return ModelBased, nil
	case string(DensityRatio), "density", "parzen":
		return DensityRatio, nil
	case string(TrialStudy), "study":
		return TrialStudy, nil
	}
	return "", &ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", s)}
}

// Resolve validates an algorithm and backend pair. An empty backend
// picks the algorithm's default; a non-empty one must belong to the
// algorithm's compatibility set.
func Resolve(algorithm, backend string) (Algorithm, Backend, error) {
	alg, err := ParseAlgorithm(algorithm)
	if err != nil {
		return "", "", err
	}
	allowed := CompatibleBackends(alg)
	if len(allowed) == 0 {
		return "", "", &ConfigError{Algorithm: string(alg), Reason: "no registered backend"}
	}
	if strings.TrimSpace(backend) == "" {
		return alg, allowed[0], nil
	}
	b, err := ParseBackend(backend)
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(allowed, b) {
		return "", "", &ConfigError{
			Algorithm: string(alg),
			Backend:   string(b),
			Reason:    "incompatible combination",
		}
	}
	return alg, b, nil
}

// engineBuilder constructs a backend's engine for a resolved algorithm
// over the canonical space.
type engineBuilder func(cfg Config, sp *space.Space, alg Algorithm) (engine.Engine, error)

// engines registers one builder per backend. The compatibility table
// only offers backends present here.
var engines = map[Backend]engineBuilder{
	NativeEnumeration: newEnumerationEngine,
	ModelBased:        newModelBasedEngine,
	DensityRatio:      newDensityRatioEngine,
	TrialStudy:        newStudyEngine,
}

// newEngine constructs the engine for a resolved pair over sp.
func newEngine(cfg Config, sp *space.Space, alg Algorithm, b Backend) (engine.Engine, error) {
	build, ok := engines[b]
	if !ok {
		return nil, &ConfigError{Algorithm: string(alg), Backend: string(b), Reason: "backend has no registered engine"}
	}
	return build(cfg, sp, alg)
}

func newEnumerationEngine(cfg Config, sp *space.Space, alg Algorithm) (engine.Engine, error) {
	if alg == Grid {
		g, err := enumerate.NewGrid(sp)
		if err != nil {
			return nil, &ConfigError{Algorithm: string(alg), Backend: string(NativeEnumeration), Reason: "space is not enumerable", Err: err}
		}
		return g, nil
	}
	return enumerate.NewRandom(sp, cfg.Seed), nil
}

func newModelBasedEngine(cfg Config, sp *space.Space, alg Algorithm) (engine.Engine, error) {
	acq, err := gp.ParseAcquisition(cfg.Acquisition)
	if err != nil {
		return nil, &ConfigError{Algorithm: string(alg), Backend: string(ModelBased), Field: "acquisition", Reason: err.Error()}
	}
	return gp.New(sp, gp.Config{Acquisition: acq, Seed: cfg.Seed}), nil
}

func newDensityRatioEngine(cfg Config, sp *space.Space, alg Algorithm) (engine.Engine, error) {
	pc := parzen.Config{Seed: cfg.Seed, Adaptive: alg == ATPE}
	if alg == Random {
		// Pure random sampling through the same machinery: the
		// startup phase simply never ends.
		pc.StartupTrials = math.MaxInt
	}
	return parzen.New(sp, pc), nil
}

func newStudyEngine(cfg Config, sp *space.Space, alg Algorithm) (engine.Engine, error) {
	switch alg {
	case Grid:
		gs, err := study.NewGridSampler(sp)
		if err != nil {
			return nil, &ConfigError{Algorithm: string(alg), Backend: string(TrialStudy), Reason: "space is not enumerable", Err: err}
		}
		return study.New(sp, gs), nil
	case Random:
		return study.New(sp, study.NewRandomSampler(sp.Len(), cfg.Seed)), nil
	case TPE:
		inner := parzen.New(sp, parzen.Config{Seed: cfg.Seed})
		return study.New(sp, study.NewEngineSampler(sp, inner)), nil
	default:
		ec := study.EvolveConfig{Seed: cfg.Seed, Population: cfg.Population}
		return study.New(sp, study.NewEvolve(sp.Len(), ec)), nil
	}
}
