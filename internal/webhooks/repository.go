package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zedaapi/instance-gateway/internal/apierr"
)

const pgUniqueViolation = "23505"

// Repository handles persistence of external webhook subscribers.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, s *Subscriber) error {
	eventsJSON, headersJSON, authJSON, retryJSON, filterJSON, securityJSON, err := marshalColumns(s)
	if err != nil {
		return apierr.Internal(err)
	}

	query := `INSERT INTO external_webhooks (
	            id, name, url, enabled, description, events, headers, authentication,
	            retry_config, filter_config, security_config, timeout
	          ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	          RETURNING last_execution_status, total_executions, successful_executions,
	                    failed_executions, created_at, updated_at`
	row := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.URL, s.Enabled, s.Description, eventsJSON, headersJSON, authJSON,
		retryJSON, filterJSON, securityJSON, s.Timeout,
	)
	if err := row.Scan(&s.Stats.LastExecutionStatus, &s.Stats.TotalExecutions,
		&s.Stats.SuccessfulExecutions, &s.Stats.FailedExecutions, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apierr.Validation("webhook name already exists")
		}
		return apierr.Internal(fmt.Errorf("insert webhook: %w", err))
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Subscriber, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE id=$1`, id)
	return scanSubscriberRow(row)
}

func (r *Repository) List(ctx context.Context) ([]Subscriber, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list webhooks: %w", err))
	}
	defer rows.Close()

	out := make([]Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriberRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Internal(fmt.Errorf("iterate webhooks: %w", err))
	}
	return out, nil
}

// ListEnabled returns all enabled subscribers, used by the dispatcher's
// fan-out.
func (r *Repository) ListEnabled(ctx context.Context) ([]Subscriber, error) {
	rows, err := r.pool.Query(ctx, selectColumns+` WHERE enabled=true`)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list enabled webhooks: %w", err))
	}
	defer rows.Close()

	out := make([]Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriberRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, s *Subscriber) error {
	eventsJSON, headersJSON, authJSON, retryJSON, filterJSON, securityJSON, err := marshalColumns(s)
	if err != nil {
		return apierr.Internal(err)
	}

	query := `UPDATE external_webhooks SET
	            name=$2, url=$3, enabled=$4, description=$5, events=$6, headers=$7,
	            authentication=$8, retry_config=$9, filter_config=$10, security_config=$11,
	            timeout=$12, updated_at=NOW()
	          WHERE id=$1 RETURNING updated_at`
	row := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.URL, s.Enabled, s.Description, eventsJSON, headersJSON, authJSON,
		retryJSON, filterJSON, securityJSON, s.Timeout,
	)
	if err := row.Scan(&s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apierr.NotFound("webhook not found")
		}
		if isUniqueViolation(err) {
			return apierr.Validation("webhook name already exists")
		}
		return apierr.Internal(fmt.Errorf("update webhook: %w", err))
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM external_webhooks WHERE id=$1`, id)
	if err != nil {
		return apierr.Internal(fmt.Errorf("delete webhook: %w", err))
	}
	if res.RowsAffected() == 0 {
		return apierr.NotFound("webhook not found")
	}
	return nil
}

const selectColumns = `SELECT id, name, url, enabled, description, events, headers, authentication,
	            retry_config, filter_config, security_config, timeout,
	            last_execution_at, last_execution_status, last_execution_error,
	            total_executions, successful_executions, failed_executions,
	            created_at, updated_at
	          FROM external_webhooks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriberRow(row rowScanner) (*Subscriber, error) {
	var s Subscriber
	var eventsJSON, headersJSON, authJSON, retryJSON, filterJSON, securityJSON []byte
	if err := row.Scan(
		&s.ID, &s.Name, &s.URL, &s.Enabled, &s.Description,
		&eventsJSON, &headersJSON, &authJSON, &retryJSON, &filterJSON, &securityJSON, &s.Timeout,
		&s.Stats.LastExecutionAt, &s.Stats.LastExecutionStatus, &s.Stats.LastExecutionError,
		&s.Stats.TotalExecutions, &s.Stats.SuccessfulExecutions, &s.Stats.FailedExecutions,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierr.NotFound("webhook not found")
		}
		return nil, apierr.Internal(fmt.Errorf("scan webhook: %w", err))
	}

	if err := unmarshalColumns(&s, eventsJSON, headersJSON, authJSON, retryJSON, filterJSON, securityJSON); err != nil {
		return nil, apierr.Internal(err)
	}
	return &s, nil
}

func marshalColumns(s *Subscriber) (events, headers, auth, retry, filter, security []byte, err error) {
	if events, err = json.Marshal(s.Events); err != nil {
		return
	}
	if headers, err = json.Marshal(s.Headers); err != nil {
		return
	}
	if auth, err = json.Marshal(s.Authentication); err != nil {
		return
	}
	if retry, err = json.Marshal(s.RetryConfig); err != nil {
		return
	}
	if filter, err = json.Marshal(s.FilterConfig); err != nil {
		return
	}
	if security, err = json.Marshal(s.SecurityConfig); err != nil {
		return
	}
	return
}

func unmarshalColumns(s *Subscriber, events, headers, auth, retry, filter, security []byte) error {
	if len(events) > 0 {
		if err := json.Unmarshal(events, &s.Events); err != nil {
			return fmt.Errorf("unmarshal events: %w", err)
		}
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &s.Headers); err != nil {
			return fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if len(auth) > 0 {
		if err := json.Unmarshal(auth, &s.Authentication); err != nil {
			return fmt.Errorf("unmarshal authentication: %w", err)
		}
	}
	if len(retry) > 0 {
		if err := json.Unmarshal(retry, &s.RetryConfig); err != nil {
			return fmt.Errorf("unmarshal retry config: %w", err)
		}
	}
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &s.FilterConfig); err != nil {
			return fmt.Errorf("unmarshal filter config: %w", err)
		}
	}
	if len(security) > 0 {
		if err := json.Unmarshal(security, &s.SecurityConfig); err != nil {
			return fmt.Errorf("unmarshal security config: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
