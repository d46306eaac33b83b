// Package store holds the in-memory approval repository: the single owner of
// the pending and history collections.
//
// Every mutation runs under one mutex and swaps in freshly built slices, so
// readers always receive a consistent point-in-time copy. An action id is in
// at most one collection; once decided it never comes back to pending except
// through Revert (rollback of a failed optimistic decide).
package store

import (
	"slices"
	"sync"

	"approval-gateway/internal/core/domain"
)

// HistoryListener receives the history after each change. revision grows
// monotonically so that consumers can drop out-of-order deliveries.
type HistoryListener func(revision uint64, history []domain.ApprovalAction)

// Snapshot is a consistent copy of both collections.
type Snapshot struct {
	Pending []domain.ApprovalAction `json:"pending"`
	History []domain.ApprovalAction `json:"history"`
}

// Approvals is the approval repository. The zero value is not usable; call
// NewApprovals.
type Approvals struct {
	mu        sync.Mutex
	pending   []domain.ApprovalAction // front = newest
	history   []domain.ApprovalAction // front = most recently decided
	revision  uint64
	listeners []HistoryListener
}

func NewApprovals() *Approvals {
	return &Approvals{
		pending: []domain.ApprovalAction{},
		history: []domain.ApprovalAction{},
	}
}

// OnHistoryChange registers fn. Listeners run after the lock is released, in
// the goroutine that performed the mutation; they must not block.
func (r *Approvals) OnHistoryChange(fn HistoryListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// ReplacePending swaps the whole pending list for list. Ids already present
// in history are skipped so that a poll started before a local decision
// cannot resurrect it. Re-listed ids keep the CreatedAt first seen locally.
// It returns the number of skipped entries.
func (r *Approvals) ReplacePending(list []domain.ApprovalAction) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenAt := make(map[string]int64, len(r.pending))
	for _, a := range r.pending {
		seenAt[a.ID] = a.CreatedAt
	}

	next := make([]domain.ApprovalAction, 0, len(list))
	index := make(map[string]int, len(list))
	skipped := 0
	for _, a := range list {
		if r.inHistory(a.ID) {
			skipped++
			continue
		}
		if created, ok := seenAt[a.ID]; ok {
			a.CreatedAt = created
		}
		a.Status = domain.StatusPending
		if i, dup := index[a.ID]; dup {
			next[i] = a
			continue
		}
		index[a.ID] = len(next)
		next = append(next, a)
	}
	r.pending = next
	return skipped
}

// InsertOrReplacePending upserts a at the front of pending. It is a no-op
// returning false when a.ID was already decided.
func (r *Approvals) InsertOrReplacePending(a domain.ApprovalAction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inHistory(a.ID) {
		return false
	}
	a.Status = domain.StatusPending
	next := make([]domain.ApprovalAction, 0, len(r.pending)+1)
	next = append(next, a)
	for _, p := range r.pending {
		if p.ID != a.ID {
			next = append(next, p)
		}
	}
	r.pending = next
	return true
}

// Decide moves id from pending to the front of history with the given
// outcome. It returns the pre-decision record, or false when id is not
// pending or outcome is not a decision.
func (r *Approvals) Decide(id string, outcome domain.Status) (domain.ApprovalAction, bool) {
	if !outcome.IsDecision() {
		return domain.ApprovalAction{}, false
	}

	r.mu.Lock()
	i := indexOf(r.pending, id)
	if i < 0 {
		r.mu.Unlock()
		return domain.ApprovalAction{}, false
	}
	original := r.pending[i]
	decided := original
	decided.Status = outcome

	r.pending = slices.Delete(slices.Clone(r.pending), i, i+1)
	r.history = prepend(r.history, decided)
	rev, hist, listeners := r.bumpLocked()
	r.mu.Unlock()

	notify(listeners, rev, hist)
	return original, true
}

// Revert undoes an optimistic Decide: prev.ID leaves history, if still
// there, and prev is put back at the front of pending. A ClearHistory that
// ran in between does not prevent the restore. It returns false only when
// nothing changed, i.e. prev.ID was already pending and absent from history.
func (r *Approvals) Revert(prev domain.ApprovalAction) bool {
	r.mu.Lock()
	changed := false
	if i := indexOf(r.history, prev.ID); i >= 0 {
		r.history = slices.Delete(slices.Clone(r.history), i, i+1)
		changed = true
	}
	if indexOf(r.pending, prev.ID) < 0 {
		prev.Status = domain.StatusPending
		r.pending = prepend(r.pending, prev)
		changed = true
	}
	if !changed {
		r.mu.Unlock()
		return false
	}
	rev, hist, listeners := r.bumpLocked()
	r.mu.Unlock()

	notify(listeners, rev, hist)
	return true
}

// ClearHistory empties history. Pending is untouched.
func (r *Approvals) ClearHistory() {
	r.mu.Lock()
	r.history = []domain.ApprovalAction{}
	rev, hist, listeners := r.bumpLocked()
	r.mu.Unlock()

	notify(listeners, rev, hist)
}

// LoadHistory seeds history from persistence. Records that are not decided
// are ignored, and loaded ids are removed from pending. Listeners are not
// notified.
func (r *Approvals) LoadHistory(list []domain.ApprovalAction) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]domain.ApprovalAction, 0, len(list))
	ids := make(map[string]struct{}, len(list))
	for _, a := range list {
		if !a.Status.IsDecision() {
			continue
		}
		if _, dup := ids[a.ID]; dup {
			continue
		}
		ids[a.ID] = struct{}{}
		next = append(next, a)
	}
	r.history = next
	r.pending = slices.DeleteFunc(slices.Clone(r.pending), func(a domain.ApprovalAction) bool {
		_, ok := ids[a.ID]
		return ok
	})
	return len(next)
}

func (r *Approvals) Pending() []domain.ApprovalAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pending)
}

func (r *Approvals) History() []domain.ApprovalAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

func (r *Approvals) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Pending: slices.Clone(r.pending), History: slices.Clone(r.history)}
}

// Find looks id up in pending, then history.
func (r *Approvals) Find(id string) (domain.ApprovalAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := indexOf(r.pending, id); i >= 0 {
		return r.pending[i], true
	}
	if i := indexOf(r.history, id); i >= 0 {
		return r.history[i], true
	}
	return domain.ApprovalAction{}, false
}

func (r *Approvals) FindPending(id string) (domain.ApprovalAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := indexOf(r.pending, id); i >= 0 {
		return r.pending[i], true
	}
	return domain.ApprovalAction{}, false
}

// IsDecided reports whether id is in history.
func (r *Approvals) IsDecided(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inHistory(id)
}

func (r *Approvals) inHistory(id string) bool {
	return indexOf(r.history, id) >= 0
}

// bumpLocked advances the revision and captures what listeners need.
// Caller holds r.mu.
func (r *Approvals) bumpLocked() (uint64, []domain.ApprovalAction, []HistoryListener) {
	r.revision++
	if len(r.listeners) == 0 {
		return r.revision, nil, nil
	}
	return r.revision, slices.Clone(r.history), slices.Clone(r.listeners)
}

func notify(listeners []HistoryListener, rev uint64, history []domain.ApprovalAction) {
	for _, fn := range listeners {
		fn(rev, history)
	}
}

func indexOf(list []domain.ApprovalAction, id string) int {
	return slices.IndexFunc(list, func(a domain.ApprovalAction) bool { return a.ID == id })
}

func prepend(list []domain.ApprovalAction, a domain.ApprovalAction) []domain.ApprovalAction {
	next := make([]domain.ApprovalAction, 0, len(list)+1)
	next = append(next, a)
	return append(next, list...)
}
