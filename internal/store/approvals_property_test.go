package store

import (
	"fmt"
	"testing"

	"approval-gateway/internal/core/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// op encodes one repository call: kind in the low digit, target id above it.
type op int

const opKinds = 6

func (o op) id() string { return fmt.Sprintf("a%d", int(o)/opKinds) }

func (o op) apply(repo *Approvals, taken map[string]domain.ApprovalAction) {
	id := o.id()
	switch int(o) % opKinds {
	case 0:
		repo.InsertOrReplacePending(action(id))
	case 1:
		if prev, ok := repo.Decide(id, domain.StatusApproved); ok {
			taken[id] = prev
		}
	case 2:
		if prev, ok := repo.Decide(id, domain.StatusRejected); ok {
			taken[id] = prev
		}
	case 3:
		if prev, ok := taken[id]; ok {
			repo.Revert(prev)
			delete(taken, id)
		}
	case 4:
		repo.ReplacePending([]domain.ApprovalAction{action(id), action("a0"), action("a1")})
	case 5:
		repo.ClearHistory()
		for k := range taken {
			delete(taken, k)
		}
	}
}

func consistent(snap Snapshot) bool {
	where := map[string]bool{}
	for _, a := range snap.Pending {
		if where[a.ID] || a.Status != domain.StatusPending {
			return false
		}
		where[a.ID] = true
	}
	for _, a := range snap.History {
		if where[a.ID] || !a.Status.IsDecision() {
			return false
		}
		where[a.ID] = true
	}
	return true
}

func TestProperty_ExclusiveMembership(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("every id is in at most one collection with a matching status", prop.ForAll(
		func(ops []int) bool {
			repo := NewApprovals()
			taken := map[string]domain.ApprovalAction{}
			for _, o := range ops {
				op(o).apply(repo, taken)
				if !consistent(repo.Snapshot()) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, opKinds*5-1)),
	))

	properties.TestingRun(t)
}

func TestProperty_NoResurrection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a decided id never reappears in pending via upsert or poll", prop.ForAll(
		func(n int, polls []int) bool {
			repo := NewApprovals()
			id := fmt.Sprintf("a%d", n)
			repo.InsertOrReplacePending(action(id))
			if _, ok := repo.Decide(id, domain.StatusApproved); !ok {
				return false
			}
			for _, p := range polls {
				list := []domain.ApprovalAction{action(id), action(fmt.Sprintf("b%d", p))}
				repo.ReplacePending(list)
				repo.InsertOrReplacePending(action(id))
				if _, pending := repo.FindPending(id); pending {
					return false
				}
			}
			return repo.IsDecided(id)
		},
		gen.IntRange(0, 100),
		gen.SliceOf(gen.IntRange(0, 10)),
	))

	properties.TestingRun(t)
}

func TestProperty_UpsertIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("inserting the same action k times leaves exactly one entry", prop.ForAll(
		func(amount string, k int) bool {
			repo := NewApprovals()
			a := action("a")
			a.Amount = amount
			for i := 0; i < k; i++ {
				repo.InsertOrReplacePending(a)
			}
			pending := repo.Pending()
			return len(pending) == 1 && pending[0] == a
		},
		gen.NumString(),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
