package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/repository"
)

const createStatusChecksTable = `
CREATE TABLE IF NOT EXISTS status_checks (
	id TEXT PRIMARY KEY,
	client_name TEXT NOT NULL,
	timestamp DATETIME NOT NULL
);
`

type StatusRepository struct {
	db *sql.DB
}

func NewStatusRepository(db *sql.DB) repository.StatusRepository {
	return &StatusRepository{db: db}
}

func (r *StatusRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createStatusChecksTable); err != nil {
		return fmt.Errorf("create status_checks table: %w", err)
	}
	return nil
}

func (r *StatusRepository) Create(ctx context.Context, check *domain.StatusCheck) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO status_checks (id, client_name, timestamp)
VALUES (?, ?, ?)`,
		check.ID,
		check.ClientName,
		check.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert status check: %w", err)
	}
	return nil
}

func (r *StatusRepository) List(ctx context.Context, limit int) ([]domain.StatusCheck, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, client_name, timestamp
FROM status_checks
ORDER BY timestamp DESC
LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list status checks: %w", err)
	}
	defer rows.Close()

	checks := []domain.StatusCheck{}
	for rows.Next() {
		var check domain.StatusCheck
		if err := rows.Scan(&check.ID, &check.ClientName, &check.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status check: %w", err)
		}
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status checks: %w", err)
	}
	return checks, nil
}
