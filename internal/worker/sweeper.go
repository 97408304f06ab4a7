package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "poll_sweep_lock"

type reconciler interface {
	ReconcileActivePolls(ctx context.Context) (int, error)
}

// Sweeper periodically closes polls that expired or were fully answered
// without a client request to trigger the check. When several instances share
// Redis, a short lock keeps them from sweeping in the same tick.
type Sweeper struct {
	store    reconciler
	redis    *redis.Client
	interval time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	done      chan struct{}
}

func NewSweeper(store reconciler, redisClient *redis.Client, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sweeper{
		store:    store,
		redis:    redisClient,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		go s.loop()
		log.Printf("sweeper: started (interval %s)", s.interval)
	})
}

// Stop ends the loop and waits for an in-flight sweep to finish. A sweeper
// stopped before Start never runs.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

func (s *Sweeper) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			log.Printf("sweeper: shutting down")
			return
		case <-ticker.C:
			s.sweep(context.Background())
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if s.redis != nil {
		locked, err := s.redis.SetNX(ctx, sweepLockKey, "1", s.interval/2).Result()
		if err != nil {
			log.Printf("sweeper: lock error, sweeping anyway: %v", err)
		} else if !locked {
			return // another instance has this tick
		}
	}

	closed, err := s.store.ReconcileActivePolls(ctx)
	if err != nil {
		// Closure is idempotent; whatever failed is retried next tick.
		log.Printf("sweeper: reconcile failed: %v", err)
	}
	if closed > 0 {
		log.Printf("sweeper: closed %d poll(s)", closed)
	}
}
