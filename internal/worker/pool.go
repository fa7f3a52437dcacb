// Package worker runs the console's periodic refresh loops.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller calls Fn every Interval until the context is done or Stop is called. The first
// call happens right away when Immediate is set.
type Poller struct {
	Name      string
	Interval  time.Duration
	Immediate bool
	Fn        func(ctx context.Context) error

	initOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

func NewPoller(name string, interval time.Duration, fn func(ctx context.Context) error) *Poller {
	return &Poller{Name: name, Interval: interval, Immediate: true, Fn: fn}
}

// Run blocks. Errors from Fn are logged and the loop keeps going.
func (p *Poller) Run(ctx context.Context) {
	p.init()
	t := time.NewTicker(p.Interval)
	defer t.Stop()

	log.Info().Str("component", "worker").Str("poller", p.Name).Dur("interval", p.Interval).Msg("poller started")
	defer log.Info().Str("component", "worker").Str("poller", p.Name).Msg("poller stopped")

	if p.Immediate {
		p.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-t.C:
			p.tick(ctx)
		}
	}
}

// Stop is safe to call more than once.
func (p *Poller) Stop() {
	p.init()
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Poller) init() {
	p.initOnce.Do(func() {
		if p.stop == nil {
			p.stop = make(chan struct{})
		}
	})
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.Fn(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("component", "worker").Str("poller", p.Name).Msg("poll failed")
	}
}
