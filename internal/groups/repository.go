package groups

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

// Repository handles persistence of instance groups.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, g *Group) error {
	instancesJSON, err := json.Marshal(g.Instances)
	if err != nil {
		return apierr.Internal(fmt.Errorf("marshal instances: %w", err))
	}

	query := `INSERT INTO instance_groups (id, name, alias, description, enabled, instances)
	          VALUES ($1,$2,$3,$4,$5,$6)
	          RETURNING created_at, updated_at`
	row := r.pool.QueryRow(ctx, query, g.ID, g.Name, g.Alias, g.Description, g.Enabled, instancesJSON)
	if err := row.Scan(&g.CreatedAt, &g.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apierr.Validation("group name or alias already exists")
		}
		return apierr.Internal(fmt.Errorf("insert group: %w", err))
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	return r.getWhere(ctx, "id=$1", id)
}

func (r *Repository) GetByName(ctx context.Context, name string) (*Group, error) {
	return r.getWhere(ctx, "lower(name)=lower($1)", name)
}

func (r *Repository) GetByAlias(ctx context.Context, alias string) (*Group, error) {
	return r.getWhere(ctx, "lower(alias)=lower($1)", alias)
}

func (r *Repository) getWhere(ctx context.Context, predicate string, arg any) (*Group, error) {
	query := fmt.Sprintf(`SELECT id, name, alias, description, enabled, instances, created_at, updated_at
	          FROM instance_groups WHERE %s`, predicate)
	row := r.pool.QueryRow(ctx, query, arg)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apierr.NotFound("instance group not found")
		}
		return nil, apierr.Internal(fmt.Errorf("query group: %w", err))
	}
	return g, nil
}

func (r *Repository) List(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, alias, description, enabled, instances, created_at, updated_at
	          FROM instance_groups ORDER BY created_at DESC`)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list groups: %w", err))
	}
	defer rows.Close()

	out := make([]Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("scan group: %w", err))
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Internal(fmt.Errorf("iterate groups: %w", err))
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, g *Group) error {
	instancesJSON, err := json.Marshal(g.Instances)
	if err != nil {
		return apierr.Internal(fmt.Errorf("marshal instances: %w", err))
	}

	query := `UPDATE instance_groups SET name=$2, alias=$3, description=$4, enabled=$5, instances=$6, updated_at=NOW()
	          WHERE id=$1 RETURNING updated_at`
	row := r.pool.QueryRow(ctx, query, g.ID, g.Name, g.Alias, g.Description, g.Enabled, instancesJSON)
	if err := row.Scan(&g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apierr.NotFound("instance group not found")
		}
		if isUniqueViolation(err) {
			return apierr.Validation("group name or alias already exists")
		}
		return apierr.Internal(fmt.Errorf("update group: %w", err))
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM instance_groups WHERE id=$1`, id)
	if err != nil {
		return apierr.Internal(fmt.Errorf("delete group: %w", err))
	}
	if res.RowsAffected() == 0 {
		return apierr.NotFound("instance group not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*Group, error) {
	var g Group
	var instancesJSON []byte
	if err := row.Scan(&g.ID, &g.Name, &g.Alias, &g.Description, &g.Enabled, &instancesJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if len(instancesJSON) > 0 {
		if err := json.Unmarshal(instancesJSON, &g.Instances); err != nil {
			return nil, fmt.Errorf("unmarshal instances: %w", err)
		}
	}
	return &g, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
