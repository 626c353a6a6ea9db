package branch

import (
	"context"
	"strings"
)

// CreateRequest carries data to create a branch.
type CreateRequest struct {
	Name              string
	Address           string
	OpeningHoursStart string
	OpeningHoursEnd   string
}

// UpdateRequest carries data for partial updates.
type UpdateRequest struct {
	Name              *string
	Address           *string
	OpeningHoursStart *string
	OpeningHoursEnd   *string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Branch, error)
	GetByID(ctx context.Context, id string) (*Branch, error)
	List(ctx context.Context, filter Filter) ([]*Branch, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Branch, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func validateBranch(b *Branch) error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrNameRequired
	}
	_, err := b.OperatingHours()
	return err
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Branch, error) {
	b := &Branch{
		Name:              strings.TrimSpace(req.Name),
		Address:           req.Address,
		OpeningHoursStart: req.OpeningHoursStart,
		OpeningHoursEnd:   req.OpeningHoursEnd,
	}
	if err := validateBranch(b); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Branch, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Branch, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Branch, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		b.Name = strings.TrimSpace(*req.Name)
	}
	if req.Address != nil {
		b.Address = *req.Address
	}
	if req.OpeningHoursStart != nil {
		b.OpeningHoursStart = *req.OpeningHoursStart
	}
	if req.OpeningHoursEnd != nil {
		b.OpeningHoursEnd = *req.OpeningHoursEnd
	}

	if err := validateBranch(b); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
