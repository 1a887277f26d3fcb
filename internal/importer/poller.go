package importer

import (
	"context"
	"errors"
	"sync"
	"time"
)

type PollConfig struct {
	Interval time.Duration
	Backoff  []time.Duration
}

// Poller re-imports one source on an interval and retries failures with
// backoff. Refresh triggers an immediate import.
type Poller struct {
	cfg      PollConfig
	importer *Importer
	source   Source

	mu      sync.Mutex
	cancel  context.CancelFunc
	manual  chan struct{}
	done    chan struct{}
	running bool
}

func NewPoller(cfg PollConfig, im *Importer, src Source) (*Poller, error) {
	if im == nil || src == nil {
		return nil, errors.New("poller requires an importer and a source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute}
	}
	return &Poller{cfg: cfg, importer: im, source: src}, nil
}

// Start imports once and keeps polling until Stop or ctx ends.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("poller already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.manual = make(chan struct{}, 1)
	p.done = make(chan struct{})
	p.running = true
	go p.runLoop(runCtx, p.manual, p.done)
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Poller) Refresh() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return errors.New("poller is not running")
	}
	select {
	case p.manual <- struct{}{}:
	default:
	}
	return nil
}

func (p *Poller) runLoop(ctx context.Context, manual <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var retryTimer *time.Timer
	var retryC <-chan time.Time
	backoffIdx := 0

	attempt := func() {
		if _, err := p.importer.Import(ctx, p.source); err != nil {
			if ctx.Err() != nil {
				return
			}
			retryTimer, retryC, backoffIdx = scheduleRetry(retryTimer, p.cfg.Backoff, backoffIdx)
			return
		}
		backoffIdx = 0
	}

	attempt()
	for {
		select {
		case <-ctx.Done():
			if retryTimer != nil {
				retryTimer.Stop()
			}
			return
		case <-manual:
			if retryTimer != nil {
				retryTimer.Stop()
				retryTimer = nil
				retryC = nil
			}
			attempt()
		case <-ticker.C:
			if retryC != nil {
				continue
			}
			attempt()
		case <-retryC:
			retryTimer = nil
			retryC = nil
			attempt()
		}
	}
}

func scheduleRetry(current *time.Timer, backoff []time.Duration, index int) (*time.Timer, <-chan time.Time, int) {
	if current != nil {
		current.Stop()
	}
	if index >= len(backoff) {
		index = len(backoff) - 1
	}
	t := time.NewTimer(backoff[index])
	nextIdx := index + 1
	if nextIdx >= len(backoff) {
		nextIdx = len(backoff) - 1
	}
	return t, t.C, nextIdx
}
