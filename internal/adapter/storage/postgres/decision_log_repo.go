package postgres

import (
	"context"
	"fmt"

	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// DecisionLogRepo implements ports.DecisionLogRepository.
type DecisionLogRepo struct {
	pool Pool
}

var _ ports.DecisionLogRepository = (*DecisionLogRepo)(nil)

func NewDecisionLogRepo(pool Pool) *DecisionLogRepo {
	return &DecisionLogRepo{pool: pool}
}

const decisionColumns = `id, action_id, coin, kind, amount, outcome, result, endpoint,
	COALESCE(http_status, 0), COALESCE(error, ''), decided_at`

func (r *DecisionLogRepo) Create(ctx context.Context, rec *domain.DecisionRecord) error {
	query := `INSERT INTO decision_logs (id, action_id, coin, kind, amount, outcome, result, endpoint, http_status, error, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.ActionID, rec.Coin, string(rec.Kind), rec.Amount,
		string(rec.Outcome), string(rec.Result), rec.Endpoint,
		rec.HTTPStatus, rec.Error, rec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision log: %w", err)
	}
	return nil
}

// ListByAction returns every attempt for actionID, newest first.
func (r *DecisionLogRepo) ListByAction(ctx context.Context, actionID string) ([]domain.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM decision_logs WHERE action_id = $1 ORDER BY decided_at DESC`

	rows, err := r.pool.Query(ctx, query, actionID)
	if err != nil {
		return nil, fmt.Errorf("query decision logs: %w", err)
	}
	return collectDecisions(rows)
}

// ListRecent returns the latest limit attempts, newest first.
func (r *DecisionLogRepo) ListRecent(ctx context.Context, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + decisionColumns + ` FROM decision_logs ORDER BY decided_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query decision logs: %w", err)
	}
	return collectDecisions(rows)
}

func collectDecisions(rows pgx.Rows) ([]domain.DecisionRecord, error) {
	defer rows.Close()

	records := []domain.DecisionRecord{}
	for rows.Next() {
		var (
			rec                   domain.DecisionRecord
			kind, outcome, result string
			status                int
			errText               string
		)
		if err := rows.Scan(&rec.ID, &rec.ActionID, &rec.Coin, &kind, &rec.Amount,
			&outcome, &result, &rec.Endpoint, &status, &errText, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision log: %w", err)
		}
		rec.Kind = domain.ActionKind(kind)
		rec.Outcome = domain.Status(outcome)
		rec.Result = domain.DecisionResult(result)
		if status != 0 {
			rec.HTTPStatus = &status
		}
		if errText != "" {
			rec.Error = &errText
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision logs: %w", err)
	}
	return records, nil
}
