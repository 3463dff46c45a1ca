package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStoreUnavailable is returned until the health store has been attached.
var ErrStoreUnavailable = errors.New("upstream health store is not available yet")

// PendingRepository lets the API start before its health store is reachable.
// Every call fails with ErrStoreUnavailable until Attach succeeds.
type PendingRepository struct {
	mu   sync.RWMutex
	repo Repository
}

func NewPendingRepository() *PendingRepository {
	return &PendingRepository{}
}

// Attach ensures the schema on repo and then routes all calls to it.
func (p *PendingRepository) Attach(ctx context.Context, repo Repository) error {
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.repo = repo
	p.mu.Unlock()
	return nil
}

// AttachWhenReady calls open and attaches what it returns. Failures are
// logged and leave the repository unavailable; it is meant to run in its own
// goroutine.
func (p *PendingRepository) AttachWhenReady(ctx context.Context, open func(context.Context) (Repository, error), logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := open(ctx)
	if err == nil {
		err = p.Attach(ctx, repo)
	}
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("health store unavailable; upstream status will report errors", "err", err)
		}
		return
	}
	logger.Info("health store attached")
}

func (p *PendingRepository) Ready() bool {
	_, err := p.current()
	return err == nil
}

func (p *PendingRepository) current() (Repository, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.repo == nil {
		return nil, ErrStoreUnavailable
	}
	return p.repo, nil
}

func (p *PendingRepository) EnsureSchema(ctx context.Context) error {
	repo, err := p.current()
	if err != nil {
		return err
	}
	return repo.EnsureSchema(ctx)
}

func (p *PendingRepository) Get(ctx context.Context, name string) (*Health, error) {
	repo, err := p.current()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, name)
}

func (p *PendingRepository) RecordSuccess(ctx context.Context, name string, result ProbeResult) error {
	repo, err := p.current()
	if err != nil {
		return fmt.Errorf("record success for %s: %w", name, err)
	}
	return repo.RecordSuccess(ctx, name, result)
}

func (p *PendingRepository) RecordFailure(ctx context.Context, name string, result ProbeResult) error {
	repo, err := p.current()
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", name, err)
	}
	return repo.RecordFailure(ctx, name, result)
}
