package fetch

import (
	"context"
	"time"
)

// Poller refreshes a Getter on a fixed interval.
type Poller struct {
	getter   *Getter
	interval time.Duration
}

// NewPoller creates a poller for getter. The getter should be built with
// autorun disabled; Run issues the first call itself.
func NewPoller(getter *Getter, interval time.Duration) *Poller {
	return &Poller{getter: getter, interval: interval}
}

// Run calls Get immediately and then on every tick, skipping ticks while the
// previous call is still loading. It returns nil once ctx is done, after
// cancelling the getter's running call.
func (p *Poller) Run(ctx context.Context) error {
	if p.getter == nil {
		return ErrNilGetter
	}
	if p.interval <= 0 {
		return NewValidationError("poll interval must be positive", "interval")
	}

	log := p.getter.client.logger
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.getter.Cancel()

	p.getter.Get()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("url", p.getter.url).Msg("poller stopped")
			return nil
		case <-ticker.C:
			if p.getter.Snapshot().IsLoading {
				log.Debug().Str("url", p.getter.url).Msg("previous poll still loading, skipping tick")
				continue
			}
			p.getter.Get()
		}
	}
}
