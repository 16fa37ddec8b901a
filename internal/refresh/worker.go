// Package refresh keeps open sessions current: a background sweep
// revisits any session whose snapshot passed its TTL and lets the session
// decide, by fingerprint, whether the live inputs moved enough to rescore.
package refresh

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"roadscout/internal/session"
)

var log = logrus.WithField("module", "refresh")

const sweepTimeout = 30 * time.Second

// Registry is the open-session directory the worker sweeps. The xsync map
// held by the API server satisfies it directly.
type Registry interface {
	Range(f func(id string, s *session.Session) bool)
}

type Worker struct {
	Sessions Registry
	Tick     time.Duration
	Stop     chan struct{}
}

func NewWorker(reg Registry, tick time.Duration) *Worker {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Worker{Sessions: reg, Tick: tick, Stop: make(chan struct{})}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) Shutdown() { close(w.Stop) }

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	w.Sessions.Range(func(id string, s *session.Session) bool {
		if !s.Stale() {
			return true
		}
		recomputed, err := s.RefreshIfStale(ctx)
		if err != nil {
			log.Warnf("refresh %s: %v", id, err)
			return true
		}
		if recomputed {
			log.Infof("refresh %s: snapshot moved, rescored", id)
		}
		return true
	})
}
