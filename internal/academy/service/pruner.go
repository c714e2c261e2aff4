package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/store"
)

// Pruner periodically deletes records older than a retention period from a
// Prunable store. It runs as a background goroutine and is safe to stop via
// its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type Pruner struct {
	name      string
	store     store.Prunable
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewPruner.
type PrunerConfig struct {
	// Retention is how much history to keep. 0 keeps everything.
	Retention time.Duration

	// Interval is how often the pruner runs. Defaults to 6h.
	Interval time.Duration
}

// NewPruner creates a pruner but does not start it. name labels log lines.
func NewPruner(name string, s store.Prunable, cfg PrunerConfig, logger zerolog.Logger) *Pruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &Pruner{
		name:      name,
		store:     s,
		retention: cfg.Retention,
		interval:  interval,
		logger:    logger.With().Str("pruner", name).Logger(),
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 || p.store == nil {
		p.logger.Info().Msg("pruner disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info().
		Dur("retention", p.retention).
		Dur("interval", p.interval).
		Msg("pruner started")
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Warn().Err(err).Msg("prune failed")
		return
	}
	if deleted > 0 {
		p.logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("pruned old records")
	}
}
