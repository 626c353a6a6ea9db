package resource

import (
	"context"
	"strings"

	"github.com/nekogravitycat/facility-booking-core/internal/branch"
)

type CreateRequest struct {
	ID           string // Optional caller-chosen id, e.g. a court number
	Name         string
	BranchID     string
	Kind         Kind
	CourtType    string
	PricePerHour int64
}

type UpdateRequest struct {
	Name         *string
	CourtType    *string
	PricePerHour *int64
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)
	// GetCourt returns the resource only if it is a court.
	GetCourt(ctx context.Context, id string) (*Resource, error)
	// GetStaff returns the resource only if it is a staff member.
	GetStaff(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context, filter Filter) ([]*Resource, int, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Resource, error)
	Delete(ctx context.Context, id string) error
}

type service struct {
	repo          Repository
	branchService branch.Service
}

func NewService(repo Repository, branchService branch.Service) Service {
	return &service{
		repo:          repo,
		branchService: branchService,
	}
}

func validateResource(res *Resource) error {
	if strings.TrimSpace(res.Name) == "" {
		return ErrEmptyName
	}
	if res.Kind == KindCourt {
		if res.PricePerHour <= 0 {
			return ErrInvalidPrice
		}
		if strings.TrimSpace(res.CourtType) == "" {
			return ErrCourtTypeMissing
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Resource, error) {
	if req.BranchID == "" {
		return nil, ErrInvalidBranch
	}

	validKind := false
	for _, k := range ValidKinds {
		if req.Kind == k {
			validKind = true
			break
		}
	}
	if !validKind {
		return nil, ErrInvalidKind
	}

	res := &Resource{
		ID:           req.ID,
		Name:         req.Name,
		BranchID:     req.BranchID,
		Kind:         req.Kind,
		CourtType:    req.CourtType,
		PricePerHour: req.PricePerHour,
	}
	if err := validateResource(res); err != nil {
		return nil, err
	}

	// Validation: Check if Branch exists
	if _, err := s.branchService.GetByID(ctx, req.BranchID); err != nil {
		return nil, ErrInvalidBranch
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Resource, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetCourt(ctx context.Context, id string) (*Resource, error) {
	return s.getOfKind(ctx, id, KindCourt)
}

func (s *service) GetStaff(ctx context.Context, id string) (*Resource, error) {
	return s.getOfKind(ctx, id, KindStaff)
}

func (s *service) getOfKind(ctx context.Context, id string, kind Kind) (*Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Kind != kind {
		return nil, ErrKindMismatch
	}
	return res, nil
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Resource, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Resource, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		res.Name = *req.Name
	}
	if req.CourtType != nil {
		res.CourtType = *req.CourtType
	}
	if req.PricePerHour != nil {
		res.PricePerHour = *req.PricePerHour
	}
	if err := validateResource(res); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
