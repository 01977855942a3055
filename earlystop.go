package hypertune

import (
	"log/slog"
	"math"
)

// EarlyStop configures plateau detection. A search stops once Patience
// consecutive trials fail to improve the last significant value by at
// least MinDelta, relative.
type EarlyStop struct {
	// Patience is how many non-improving trials are tolerated.
	Patience int

	// MinDelta is the minimum relative improvement that counts as
	// progress, e.g. 0.001 for 0.1%.
	MinDelta float64
}

// DefaultEarlyStop returns the plateau settings used when EarlyStop is
// enabled without explicit values.
func DefaultEarlyStop() EarlyStop {
	return EarlyStop{Patience: 10, MinDelta: 0.001}
}

// plateauTracker watches the value stream for stagnation.
type plateauTracker struct {
	cfg             EarlyStop
	lastSignificant float64
	staleCount      int
	log             *slog.Logger
}

func newPlateauTracker(cfg EarlyStop, log *slog.Logger) *plateauTracker {
	if cfg.Patience <= 0 {
		cfg.Patience = DefaultEarlyStop().Patience
	}
	return &plateauTracker{
		cfg:             cfg,
		lastSignificant: math.Inf(1),
		log:             log,
	}
}

// update records a value and reports whether the search should stop.
func (p *plateauTracker) update(value float64) bool {
	if math.IsInf(p.lastSignificant, 1) {
		p.lastSignificant = value
		return false
	}

	improvement := p.lastSignificant - value
	if denom := math.Abs(p.lastSignificant); denom > 0 {
		improvement /= denom
	}
	if improvement >= p.cfg.MinDelta && value < p.lastSignificant {
		p.lastSignificant = value
		p.staleCount = 0
		return false
	}

	p.staleCount++
	if p.staleCount >= p.cfg.Patience {
		p.log.Info("early stop: value plateaued",
			"stale_count", p.staleCount,
			"patience", p.cfg.Patience,
			"last_significant", p.lastSignificant,
		)
		return true
	}
	return false
}
