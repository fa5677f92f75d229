package main

import (
	"context"
	"sync"
	"time"

	"unitrack/pkg/logger"
)

// ExpiryRefresher re-classifies tracked units across facilities.
type ExpiryRefresher interface {
	RefreshAllExpiry(ctx context.Context) (int, error)
}

// OperationCleaner removes expired operation records.
type OperationCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper runs the periodic maintenance jobs of the engine.
type Sweeper struct {
	expiry          ExpiryRefresher
	operations      OperationCleaner
	expiryInterval  time.Duration
	cleanupInterval time.Duration
	log             *logger.Logger
}

// NewSweeper creates a sweeper. operations may be nil.
func NewSweeper(expiry ExpiryRefresher, operations OperationCleaner, expiryInterval, cleanupInterval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		expiry:          expiry,
		operations:      operations,
		expiryInterval:  expiryInterval,
		cleanupInterval: cleanupInterval,
		log:             log.WithComponent("sweeper"),
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.expiryInterval, s.refreshExpiry)
	}()
	if s.operations != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, s.cleanupInterval, s.cleanupOperations)
		}()
	}
	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, job func(context.Context)) {
	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (s *Sweeper) refreshExpiry(ctx context.Context) {
	start := time.Now()
	n, err := s.expiry.RefreshAllExpiry(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Errorw("expiry refresh failed", "error", err)
		}
		return
	}
	if n > 0 {
		s.log.Infow("expiry labels refreshed", "updated", n, "took_ms", time.Since(start).Milliseconds())
	}
}

func (s *Sweeper) cleanupOperations(ctx context.Context) {
	n, err := s.operations.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Errorw("operation cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		s.log.Infow("cleaned up operation records", "count", n)
	}
}
