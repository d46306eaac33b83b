package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/internal/core/schema"
	"approval-gateway/internal/store"
	"approval-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

const (
	historyWriteTimeout = 5 * time.Second
	historyRetryBase    = time.Second
	historyRetryMax     = 30 * time.Second
)

type historyRevision struct {
	rev     uint64
	history []domain.ApprovalAction
}

// HistoryPersister writes the decided-actions history off the repository's
// lock. Changes are coalesced: only the newest revision is ever written and
// older deliveries are dropped.
type HistoryPersister struct {
	repo  *store.Approvals
	store ports.HistoryStore
	log   zerolog.Logger

	mu      sync.Mutex
	latest  *historyRevision
	written uint64

	wake chan struct{}
	// first delay before a failed write is retried; doubles up to historyRetryMax
	retryBase time.Duration
}

func NewHistoryPersister(repo *store.Approvals, historyStore ports.HistoryStore, log zerolog.Logger) *HistoryPersister {
	return &HistoryPersister{
		repo:  repo,
		store: historyStore,
		log:   logger.Component(log, "history"),
		wake:  make(chan struct{}, 1),

		retryBase: historyRetryBase,
	}
}

// Load seeds the repository from the store. Records that fail validation
// are dropped with a warning; the rest are kept.
func (p *HistoryPersister) Load(ctx context.Context) (int, error) {
	records, err := p.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading history: %w", err)
	}

	valid := make([]domain.ApprovalAction, 0, len(records))
	for i, raw := range records {
		var a domain.ApprovalAction
		if err := json.Unmarshal(raw, &a); err != nil {
			p.log.Warn().Err(err).Int("index", i).Msg("dropping undecodable history record")
			continue
		}
		if err := schema.ValidateAction(a); err != nil {
			p.log.Warn().Err(err).Int("index", i).Str("action_id", a.ID).Msg("dropping invalid history record")
			continue
		}
		if !a.Status.IsDecision() {
			p.log.Warn().Int("index", i).Str("action_id", a.ID).Msg("dropping undecided history record")
			continue
		}
		valid = append(valid, a)
	}

	loaded := p.repo.LoadHistory(valid)
	p.log.Info().Int("loaded", loaded).Int("dropped", len(records)-loaded).Msg("history restored")
	return loaded, nil
}

// Attach subscribes the persister to repository changes.
func (p *HistoryPersister) Attach() {
	p.repo.OnHistoryChange(p.enqueue)
}

func (p *HistoryPersister) enqueue(rev uint64, history []domain.ApprovalAction) {
	p.mu.Lock()
	if rev > p.written && (p.latest == nil || rev > p.latest.rev) {
		p.latest = &historyRevision{rev: rev, history: history}
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes queued revisions until ctx is done, then flushes once more.
// A failed write is retried with backoff even if history does not change
// again.
func (p *HistoryPersister) Run(ctx context.Context) {
	var retry <-chan time.Time
	delay := p.retryBase
	for {
		select {
		case <-p.wake:
		case <-retry:
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
			if err := p.Flush(final); err != nil {
				p.log.Error().Err(err).Msg("final history write failed")
			}
			cancel()
			return
		}

		retry = nil
		if err := p.Flush(ctx); err != nil {
			p.log.Error().Err(err).Dur("retry_in", delay).Msg("history write failed")
			retry = time.After(delay)
			delay = min(delay*2, historyRetryMax)
			continue
		}
		delay = p.retryBase
	}
}

// Flush writes the newest queued revision, if any. On failure the revision
// stays queued unless a newer one arrived meanwhile.
func (p *HistoryPersister) Flush(ctx context.Context) error {
	p.mu.Lock()
	next := p.latest
	p.latest = nil
	p.mu.Unlock()

	if next == nil {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, historyWriteTimeout)
	defer cancel()
	if err := p.store.Save(writeCtx, next.history); err != nil {
		p.mu.Lock()
		if p.latest == nil {
			p.latest = next
		}
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	if next.rev > p.written {
		p.written = next.rev
	}
	p.mu.Unlock()

	p.log.Debug().Uint64("revision", next.rev).Int("records", len(next.history)).Msg("history persisted")
	return nil
}
