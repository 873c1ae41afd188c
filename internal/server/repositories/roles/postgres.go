// Package roles provides the PostgreSQL-backed role repository.
package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/ecomauth/internal/common"
	"github.com/dmitrijs2005/ecomauth/internal/dbx"
	"github.com/dmitrijs2005/ecomauth/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT id, role_name, description FROM roles WHERE lower(role_name) = lower($1)`

	var role models.Role
	err := r.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name, &role.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &role, nil
}

func (r *PostgresRepository) Ensure(ctx context.Context, name, description string) (*models.Role, error) {
	query :=
		`INSERT INTO roles (role_name, description)
		 VALUES ($1, $2)
		 ON CONFLICT (role_name) DO UPDATE SET description = EXCLUDED.description, updated_at = now()
		 RETURNING id
		 `

	role := &models.Role{Name: name, Description: description}
	if err := r.db.QueryRowContext(ctx, query, name, description).Scan(&role.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return role, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, role_name, description FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
