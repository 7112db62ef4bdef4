package webhooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zedaapi/instance-gateway/internal/apierr"
)

// StatsRecorder persists delivery outcomes as single-statement atomic
// increments, never a read-modify-write of the full record, satisfying
// spec.md §5's concurrent-delivery ordering guarantee.
type StatsRecorder struct {
	pool *pgxpool.Pool
}

func NewStatsRecorder(pool *pgxpool.Pool) *StatsRecorder {
	return &StatsRecorder{pool: pool}
}

// RecordSuccess increments totalExecutions and successfulExecutions, and
// clears lastExecutionError.
func (s *StatsRecorder) RecordSuccess(ctx context.Context, webhookID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE external_webhooks SET
			total_executions = total_executions + 1,
			successful_executions = successful_executions + 1,
			last_execution_at = NOW(),
			last_execution_status = $2,
			last_execution_error = NULL,
			updated_at = NOW()
		WHERE id = $1`, webhookID, StatusSuccess)
	if err != nil {
		return apierr.Internal(fmt.Errorf("record webhook success: %w", err))
	}
	return nil
}

// RecordFailure increments totalExecutions and failedExecutions, and sets
// lastExecutionError to message.
func (s *StatsRecorder) RecordFailure(ctx context.Context, webhookID uuid.UUID, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE external_webhooks SET
			total_executions = total_executions + 1,
			failed_executions = failed_executions + 1,
			last_execution_at = NOW(),
			last_execution_status = $2,
			last_execution_error = $3,
			updated_at = NOW()
		WHERE id = $1`, webhookID, StatusFailed, message)
	if err != nil {
		return apierr.Internal(fmt.Errorf("record webhook failure: %w", err))
	}
	return nil
}
