package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/repository"
)

const statusListLimit = 1000

// StatusService records and lists client status-check pings.
type StatusService interface {
	Record(ctx context.Context, clientName string) (*domain.StatusCheck, error)
	List(ctx context.Context) ([]domain.StatusCheck, error)
}

type statusService struct {
	checks repository.StatusRepository
}

func NewStatusService(checks repository.StatusRepository) StatusService {
	return &statusService{checks: checks}
}

func (s *statusService) Record(ctx context.Context, clientName string) (*domain.StatusCheck, error) {
	if clientName == "" {
		return nil, validationf("client_name is required")
	}
	check := &domain.StatusCheck{
		ID:         uuid.NewString(),
		ClientName: clientName,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.checks.Create(ctx, check); err != nil {
		return nil, err
	}
	return check, nil
}

func (s *statusService) List(ctx context.Context) ([]domain.StatusCheck, error) {
	return s.checks.List(ctx, statusListLimit)
}
