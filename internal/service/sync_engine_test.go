package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/internal/core/ports/mocks"
	"approval-gateway/internal/store"
	"approval-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type syncFixture struct {
	engine  *SyncEngine
	repo    *store.Approvals
	backend *mocks.MockBackendClient
}

func newSyncFixture(t *testing.T, token string, opts ...SyncOption) *syncFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockBackendClient(ctrl)
	backend.EXPECT().DecisionDefaults().Return("https://backend.test/approve", "https://backend.test/reject").AnyTimes()

	repo := store.NewApprovals()
	cfg := config.SyncConfig{PollInterval: time.Hour, PollTimeout: time.Second, DecideTimeout: time.Second}
	opts = append([]SyncOption{WithClock(func() time.Time { return testNow }), WithRefreshAfterDecide(false)}, opts...)
	engine := NewSyncEngine(repo, backend, staticToken(token), cfg, zerolog.Nop(), opts...)
	t.Cleanup(engine.Close)

	return &syncFixture{engine: engine, repo: repo, backend: backend}
}

func pendingAction(id string, expiresIn time.Duration) domain.ApprovalAction {
	return domain.ApprovalAction{
		ID:         id,
		Coin:       "ETH",
		Kind:       domain.ActionKindSwap,
		Amount:     "1.5",
		Expiry:     testNow.Add(expiresIn).UnixMilli(),
		ApproveURL: "https://backend.test/approve/" + id,
		RejectURL:  "https://backend.test/reject/" + id,
		Status:     domain.StatusPending,
		CreatedAt:  testNow.UnixMilli(),
	}
}

func listJSON(ids ...string) []byte {
	body := "["
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"actionId":%q,"coin":"ETH","action":"swap","amount":"1.5","expiry":%d}`,
			id, testNow.Add(time.Minute).UnixMilli())
	}
	return []byte(body + "]")
}

func pendingIDs(repo *store.Approvals) []string {
	var out []string
	for _, a := range repo.Pending() {
		out = append(out, a.ID)
	}
	return out
}

func TestSyncEngine_RefreshWithoutToken(t *testing.T) {
	f := newSyncFixture(t, "")

	assert.NoError(t, f.engine.Refresh(context.Background()))
	assert.Equal(t, uint64(0), f.engine.Status().Generation)
}

func TestSyncEngine_RefreshApplies(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(listJSON("a1", "a2"), nil)

	require.NoError(t, f.engine.Refresh(context.Background()))

	pending := f.repo.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "https://backend.test/approve", pending[0].ApproveURL)
	assert.Equal(t, testNow.UnixMilli(), pending[0].CreatedAt)

	st := f.engine.Status()
	require.NotNil(t, st.LastSyncedAt)
	assert.Equal(t, testNow, *st.LastSyncedAt)
	assert.Empty(t, st.LastError)
	assert.False(t, st.Polling)
}

func TestSyncEngine_RefreshRejectsWholeBatch(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("old", time.Minute)})

	body := []byte(`[
		{"actionId":"a1","coin":"ETH","action":"swap","amount":"1","expiry":1700000060000},
		{"actionId":"a2","coin":"ETH","action":"swap","amount":"1"}]`)
	f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(body, nil)

	err := f.engine.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	ve, ok := appErr.Err.(interface{ Details() interface{} })
	require.True(t, ok)
	assert.Equal(t, 1, ve.Details().(map[string]interface{})["index"])

	assert.Equal(t, []string{"old"}, pendingIDs(f.repo), "repository untouched")
	assert.NotEmpty(t, f.engine.Status().LastError)
}

func TestSyncEngine_RefreshBackendError(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("old", time.Minute)})
	f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(nil, apperror.ErrAPI(503, "https://backend.test/pushcut/status"))

	err := f.engine.Refresh(context.Background())
	assert.Equal(t, 503, apperror.StatusOf(err))
	assert.Equal(t, []string{"old"}, pendingIDs(f.repo))
}

func TestSyncEngine_ReconciliationDropsResolved(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	gomock.InOrder(
		f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(listJSON("A", "B"), nil),
		f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(listJSON("B"), nil),
	)

	require.NoError(t, f.engine.Refresh(context.Background()))
	require.NoError(t, f.engine.Refresh(context.Background()))

	assert.Equal(t, []string{"B"}, pendingIDs(f.repo))
	assert.Empty(t, f.repo.History())
}

func TestSyncEngine_StalePollDropped(t *testing.T) {
	f := newSyncFixture(t, "dev-1")

	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	gomock.InOrder(
		f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").DoAndReturn(func(context.Context, string) ([]byte, error) {
			close(slowStarted)
			<-releaseSlow
			return listJSON("stale"), nil
		}),
		f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(listJSON("fresh"), nil),
	)

	done := make(chan error)
	go func() { done <- f.engine.Refresh(context.Background()) }()
	<-slowStarted

	require.NoError(t, f.engine.Refresh(context.Background()))
	close(releaseSlow)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"fresh"}, pendingIDs(f.repo))
	assert.Equal(t, uint64(2), f.engine.Status().Generation)
}

func TestSyncEngine_DecideConfirmed(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute), pendingAction("a2", time.Minute)})
	f.backend.EXPECT().PostDecision(gomock.Any(), "https://backend.test/approve/a1", "dev-1", "a1").
		Return(&ports.DecisionResponse{Success: true}, nil)

	decided, err := f.engine.Approve(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, decided.Status)

	assert.Equal(t, []string{"a2"}, pendingIDs(f.repo))
	history := f.repo.History()
	require.Len(t, history, 1)
	assert.Equal(t, "a1", history[0].ID)
	assert.Empty(t, f.engine.Status().InFlight)
}

func TestSyncEngine_DecideRollsBackOnServerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockDecisionLogRepository(ctrl)
	f := newSyncFixture(t, "dev-1", WithDecisionLog(audit))
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})
	before := f.repo.Snapshot()

	f.backend.EXPECT().PostDecision(gomock.Any(), "https://backend.test/reject/a1", "dev-1", "a1").
		Return(nil, apperror.ErrAPI(500, "https://backend.test/reject/a1"))

	var rec *domain.DecisionRecord
	audit.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *domain.DecisionRecord) error {
		rec = r
		return nil
	})

	_, err := f.engine.Reject(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAPI))
	assert.Equal(t, 500, apperror.StatusOf(err))
	assert.Equal(t, before, f.repo.Snapshot(), "snapshot identical to before the decide")

	f.engine.Close()
	require.NotNil(t, rec)
	assert.Equal(t, domain.DecisionRolledBack, rec.Result)
	assert.Equal(t, domain.StatusRejected, rec.Outcome)
	require.NotNil(t, rec.HTTPStatus)
	assert.Equal(t, 500, *rec.HTTPStatus)
}

func TestSyncEngine_RollbackSurvivesHistoryClear(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	original := pendingAction("a1", time.Minute)
	f.repo.ReplacePending([]domain.ApprovalAction{original})

	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), "dev-1", "a1").
		DoAndReturn(func(context.Context, string, string, string) (*ports.DecisionResponse, error) {
			// the user clears history while the POST is in flight
			f.repo.ClearHistory()
			return nil, apperror.ErrAPI(500, "https://backend.test/approve/a1")
		})

	_, err := f.engine.Approve(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAPI))

	restored, found := f.repo.FindPending("a1")
	require.True(t, found, "failed decide must leave the action pending")
	assert.Equal(t, original, restored)
	assert.Empty(t, f.repo.History())
}

func TestSyncEngine_DecideNetworkErrorWrapped(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("dial tcp: connection refused"))

	_, err := f.engine.Approve(context.Background(), "a1")
	assert.True(t, apperror.HasCode(err, apperror.CodeNetwork))
	assert.Equal(t, []string{"a1"}, pendingIDs(f.repo))
}

func TestSyncEngine_DecideIgnoresCallerCancellation(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})

	ctx, cancel := context.WithCancel(context.Background())
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(callCtx context.Context, _, _, _ string) (*ports.DecisionResponse, error) {
			cancel()
			assert.NoError(t, callCtx.Err(), "decision call is not cancelled mid-flight")
			_, hasDeadline := callCtx.Deadline()
			assert.True(t, hasDeadline)
			return &ports.DecisionResponse{Success: true}, nil
		})

	_, err := f.engine.Approve(ctx, "a1")
	assert.NoError(t, err)
}

func TestSyncEngine_ExpiryGate(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	expired := pendingAction("a1", -time.Millisecond)
	f.repo.ReplacePending([]domain.ApprovalAction{expired})
	before := f.repo.Snapshot()
	// no PostDecision expectation: any network call fails the test

	_, err := f.engine.Approve(context.Background(), "a1")
	assert.True(t, apperror.HasCode(err, apperror.CodeActionExpired))
	assert.Equal(t, before, f.repo.Snapshot())
}

func TestSyncEngine_ExpiryBoundary(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", 0)}) // expiry == now
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&ports.DecisionResponse{Success: true}, nil)

	_, err := f.engine.Approve(context.Background(), "a1")
	assert.NoError(t, err, "now == expiry is still decidable")
}

func TestSyncEngine_DecidePreconditions(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newSyncFixture(t, "dev-1")
		_, err := f.engine.Approve(context.Background(), "missing")
		assert.True(t, apperror.HasCode(err, apperror.CodeActionNotFound))
	})

	t.Run("already decided", func(t *testing.T) {
		f := newSyncFixture(t, "dev-1")
		f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})
		f.repo.Decide("a1", domain.StatusApproved)

		_, err := f.engine.Reject(context.Background(), "a1")
		assert.True(t, apperror.HasCode(err, apperror.CodeActionNotFound))
	})

	t.Run("no token", func(t *testing.T) {
		f := newSyncFixture(t, "")
		f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})

		_, err := f.engine.Approve(context.Background(), "a1")
		assert.True(t, apperror.HasCode(err, apperror.CodeNoDeviceToken))
		assert.Equal(t, []string{"a1"}, pendingIDs(f.repo))
	})

	t.Run("invalid outcome", func(t *testing.T) {
		f := newSyncFixture(t, "dev-1")
		_, err := f.engine.Decide(context.Background(), "a1", domain.StatusPending)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
}

func TestSyncEngine_DuplicateDecideRace(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), "dev-1", "a1").
		DoAndReturn(func(context.Context, string, string, string) (*ports.DecisionResponse, error) {
			close(entered)
			<-release
			return &ports.DecisionResponse{Success: true}, nil
		}).Times(1)

	first := make(chan error)
	go func() {
		_, err := f.engine.Approve(context.Background(), "a1")
		first <- err
	}()
	<-entered

	assert.Equal(t, []string{"a1"}, f.engine.Status().InFlight)
	_, err := f.engine.Approve(context.Background(), "a1")
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyDeciding))

	close(release)
	require.NoError(t, <-first)

	_, err = f.engine.Approve(context.Background(), "a1")
	assert.True(t, apperror.HasCode(err, apperror.CodeActionNotFound))
	assert.Len(t, f.repo.History(), 1)
}

func TestSyncEngine_ConcurrentDecidesOneNetworkCall(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&ports.DecisionResponse{Success: true}, nil).Times(1)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Approve(context.Background(), "a1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	for _, err := range errs {
		assert.True(t,
			apperror.HasCode(err, apperror.CodeAlreadyDeciding) || apperror.HasCode(err, apperror.CodeActionNotFound),
			"unexpected error %v", err)
	}
}

func TestSyncEngine_PollDuringDecisionDoesNotResurrect(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})

	f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").Return(listJSON("a1", "a2"), nil)
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string) (*ports.DecisionResponse, error) {
			// the backend has not processed the decision yet when this poll lands
			require.NoError(t, f.engine.Refresh(context.Background()))
			return &ports.DecisionResponse{Success: true}, nil
		})

	_, err := f.engine.Approve(context.Background(), "a1")
	require.NoError(t, err)

	assert.Equal(t, []string{"a2"}, pendingIDs(f.repo))
	assert.Equal(t, "a1", f.repo.History()[0].ID)
}

func TestSyncEngine_RefreshAfterDecide(t *testing.T) {
	f := newSyncFixture(t, "dev-1", WithRefreshAfterDecide(true))
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute), pendingAction("a2", time.Minute)})

	polled := make(chan struct{})
	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&ports.DecisionResponse{Success: true}, nil)
	f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").DoAndReturn(func(context.Context, string) ([]byte, error) {
		close(polled)
		return listJSON("a2"), nil
	})

	_, err := f.engine.Approve(context.Background(), "a1")
	require.NoError(t, err)

	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh after confirmed decision")
	}
	f.engine.Close()
	assert.Equal(t, []string{"a2"}, pendingIDs(f.repo))
}

func TestSyncEngine_AuditConfirmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockDecisionLogRepository(ctrl)
	f := newSyncFixture(t, "dev-1", WithDecisionLog(audit))
	f.repo.ReplacePending([]domain.ApprovalAction{pendingAction("a1", time.Minute)})

	f.backend.EXPECT().PostDecision(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&ports.DecisionResponse{Success: true}, nil)
	audit.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *domain.DecisionRecord) error {
		assert.Equal(t, domain.DecisionConfirmed, r.Result)
		assert.Nil(t, r.HTTPStatus)
		return errors.New("db down") // logged, never surfaced
	})

	_, err := f.engine.Approve(context.Background(), "a1")
	assert.NoError(t, err)
	f.engine.Close()
}

func TestSyncEngine_Run(t *testing.T) {
	f := newSyncFixture(t, "dev-1")
	ctx, cancel := context.WithCancel(context.Background())
	f.backend.EXPECT().FetchPending(gomock.Any(), "dev-1").DoAndReturn(func(context.Context, string) ([]byte, error) {
		cancel()
		return listJSON("a1"), nil
	})

	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
