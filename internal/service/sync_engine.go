package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/internal/core/schema"
	"approval-gateway/internal/store"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/logger"

	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

// SyncEngine keeps the repository in step with the backend and runs the
// two-phase decide protocol: optimistic local move, then the network call,
// then commit or rollback.
type SyncEngine struct {
	repo      *store.Approvals
	backend   ports.BackendClient
	tokens    ports.TokenSource
	decisions ports.DecisionLogRepository
	cfg       config.SyncConfig
	clock     func() time.Time
	log       zerolog.Logger

	refreshAfterDecide bool

	// generation counts started polls; a poll result is applied only if
	// no newer poll has started since.
	generation atomic.Uint64

	mu           sync.Mutex
	inFlight     map[string]struct{}
	polling      int
	lastSyncedAt *time.Time
	lastError    string

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

var _ ports.SyncService = (*SyncEngine)(nil)

// SyncOption configures a SyncEngine.
type SyncOption func(*SyncEngine)

// WithClock overrides the time source used for expiry checks and stamping.
func WithClock(clock func() time.Time) SyncOption {
	return func(e *SyncEngine) { e.clock = clock }
}

// WithDecisionLog records every decide attempt in repo.
func WithDecisionLog(repo ports.DecisionLogRepository) SyncOption {
	return func(e *SyncEngine) { e.decisions = repo }
}

// WithRefreshAfterDecide toggles the background poll after a confirmed
// decision. Enabled by default.
func WithRefreshAfterDecide(enabled bool) SyncOption {
	return func(e *SyncEngine) { e.refreshAfterDecide = enabled }
}

func NewSyncEngine(
	repo *store.Approvals,
	backend ports.BackendClient,
	tokens ports.TokenSource,
	cfg config.SyncConfig,
	log zerolog.Logger,
	opts ...SyncOption,
) *SyncEngine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &SyncEngine{
		repo:               repo,
		backend:            backend,
		tokens:             tokens,
		cfg:                cfg,
		clock:              time.Now,
		log:                logger.Component(log, "sync"),
		refreshAfterDecide: true,
		inFlight:           make(map[string]struct{}),
		ctx:                ctx,
		cancel:             cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run polls immediately and then every PollInterval until ctx is done.
func (e *SyncEngine) Run(ctx context.Context) {
	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", interval).Msg("sync loop started")
	for {
		if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
			e.log.Warn().Err(err).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			e.log.Info().Msg("sync loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches and reconciles the pending list once. Without a device
// token it does nothing. A result that lost the race to a newer poll is
// dropped silently.
func (e *SyncEngine) Refresh(ctx context.Context) error {
	token := e.tokens.Token()
	if token == "" {
		e.log.Debug().Msg("poll skipped: no device token")
		return nil
	}

	gen := e.generation.Add(1)
	e.mu.Lock()
	e.polling++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.polling--
		e.mu.Unlock()
	}()

	if e.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PollTimeout)
		defer cancel()
	}

	body, err := e.backend.FetchPending(ctx, token)
	if err != nil {
		e.recordError(gen, err)
		return err
	}

	approveURL, rejectURL := e.backend.DecisionDefaults()
	list, err := schema.ValidateBackendList(body, schema.Defaults{ApproveURL: approveURL, RejectURL: rejectURL}, e.clock())
	if err != nil {
		e.log.Error().Err(err).Uint64("generation", gen).Msg("backend list rejected")
		err = apperror.ErrValidation(err)
		e.recordError(gen, err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if latest := e.generation.Load(); gen != latest {
		e.log.Debug().Uint64("generation", gen).Uint64("latest", latest).Msg("stale poll dropped")
		return nil
	}
	skipped := e.repo.ReplacePending(list)
	now := e.clock()
	e.lastSyncedAt = &now
	e.lastError = ""

	e.log.Debug().
		Uint64("generation", gen).
		Int("pending", len(list)-skipped).
		Int("skipped_decided", skipped).
		Msg("poll applied")
	return nil
}

func (e *SyncEngine) Approve(ctx context.Context, id string) (domain.ApprovalAction, error) {
	return e.Decide(ctx, id, domain.StatusApproved)
}

func (e *SyncEngine) Reject(ctx context.Context, id string) (domain.ApprovalAction, error) {
	return e.Decide(ctx, id, domain.StatusRejected)
}

// Decide approves or rejects a pending action. The local move happens
// before the network call; on any failure it is rolled back before the
// error is returned. The backend call is bounded by DecideTimeout and is
// not cancelled by ctx.
func (e *SyncEngine) Decide(ctx context.Context, id string, outcome domain.Status) (domain.ApprovalAction, error) {
	if !outcome.IsDecision() {
		return domain.ApprovalAction{}, apperror.Validation("outcome must be approved or rejected")
	}
	token := e.tokens.Token()
	if token == "" {
		return domain.ApprovalAction{}, apperror.ErrNoDeviceToken()
	}

	if err := e.claim(id); err != nil {
		return domain.ApprovalAction{}, err
	}
	defer e.release(id)

	original, ok := e.repo.Decide(id, outcome)
	if !ok {
		// resolved by a poll between the check and the move
		return domain.ApprovalAction{}, apperror.ErrActionNotFound(id)
	}
	log := e.log.With().Str("action_id", id).Str("outcome", string(outcome)).Logger()

	timeout := e.cfg.DecideTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	_, err := e.backend.PostDecision(callCtx, original.EndpointFor(outcome), token, id)
	if err != nil {
		if !e.repo.Revert(original) {
			log.Warn().Msg("rollback found the action already pending")
		}
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			err = apperror.ErrNetwork(err)
		}
		log.Warn().Err(err).Msg("decision failed, rolled back")
		e.audit(original, outcome, domain.DecisionRolledBack, err)
		return domain.ApprovalAction{}, err
	}

	log.Info().Msg("decision confirmed")
	e.audit(original, outcome, domain.DecisionConfirmed, nil)
	if e.refreshAfterDecide {
		e.refreshAsync()
	}

	decided := original
	decided.Status = outcome
	return decided, nil
}

// claim runs the pre-checks and marks id in flight. Order matters: a second
// decide on an id already in flight must not see it as missing.
func (e *SyncEngine) claim(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[id]; busy {
		return apperror.ErrAlreadyDeciding(id)
	}
	a, ok := e.repo.FindPending(id)
	if !ok {
		return apperror.ErrActionNotFound(id)
	}
	if a.IsExpired(e.clock()) {
		return apperror.ErrActionExpired(id)
	}
	e.inFlight[id] = struct{}{}
	return nil
}

func (e *SyncEngine) release(id string) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

// Status reports the state of the last poll and the decisions in flight.
func (e *SyncEngine) Status() ports.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := ports.SyncStatus{
		LastError:  e.lastError,
		Generation: e.generation.Load(),
		Polling:    e.polling > 0,
		InFlight:   make([]string, 0, len(e.inFlight)),
	}
	if e.lastSyncedAt != nil {
		at := *e.lastSyncedAt
		st.LastSyncedAt = &at
	}
	for id := range e.inFlight {
		st.InFlight = append(st.InFlight, id)
	}
	slices.Sort(st.InFlight)
	return st
}

// Close stops background work started by decisions and waits for it.
func (e *SyncEngine) Close() {
	e.cancel()
	e.bg.Wait()
}

func (e *SyncEngine) recordError(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.generation.Load() {
		e.lastError = err.Error()
	}
}

func (e *SyncEngine) refreshAsync() {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if err := e.Refresh(e.ctx); err != nil && e.ctx.Err() == nil {
			e.log.Warn().Err(err).Msg("post-decision refresh failed")
		}
	}()
}

func (e *SyncEngine) audit(a domain.ApprovalAction, outcome domain.Status, result domain.DecisionResult, cause error) {
	if e.decisions == nil {
		return
	}
	rec := domain.NewDecisionRecord(a, outcome, result, e.clock())
	if cause != nil {
		msg := cause.Error()
		rec.Error = &msg
		if status := apperror.StatusOf(cause); status != 0 {
			rec.HTTPStatus = &status
		}
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), auditWriteTimeout)
		defer cancel()
		if err := e.decisions.Create(ctx, rec); err != nil {
			e.log.Warn().Err(err).Str("action_id", rec.ActionID).Msg("decision audit write failed")
		}
	}()
}
