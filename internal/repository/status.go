package repository

import (
	"context"

	"fakemyrun/internal/domain"
)

// StatusRepository manages client status-check audit records.
type StatusRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, check *domain.StatusCheck) error
	List(ctx context.Context, limit int) ([]domain.StatusCheck, error)
}
