package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nekogravitycat/facility-booking-core/internal/pricing"
)

// Service defines business logic related to customers.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Customer, error)
	GetByID(ctx context.Context, id string) (*Customer, error)
	List(ctx context.Context, filter CustomerFilter) ([]*Customer, int, error)
	// GrantMembership adds a tier. Granting a tier the customer already holds replaces its validity.
	GrantMembership(ctx context.Context, id string, m Membership) error
	// ActiveTiers returns the tiers whose membership is valid at the given instant.
	ActiveTiers(ctx context.Context, id string, at time.Time) ([]pricing.Tier, error)
	AwardPoints(ctx context.Context, id string, points int64) error
}

type RegisterRequest struct {
	Email       string
	DisplayName string
	Phone       string
}

type service struct {
	repo Repository
}

// NewService creates a new customer Service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Customer, error) {
	cleanEmail := normalizeEmail(req.Email)
	if cleanEmail == "" {
		return nil, ErrEmailRequired
	}

	_, err := s.repo.GetByEmail(ctx, cleanEmail)
	if err == nil {
		return nil, ErrEmailAlreadyUsed
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}

	c := &Customer{
		Email:       cleanEmail,
		DisplayName: optional(req.DisplayName),
		Phone:       optional(req.Phone),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return c, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Customer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter CustomerFilter) ([]*Customer, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) GrantMembership(ctx context.Context, id string, m Membership) error {
	if !m.Tier.Valid() || m.Tier == pricing.TierNone {
		return ErrInvalidTier
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	memberships := make([]Membership, 0, len(c.Memberships)+1)
	for _, existing := range c.Memberships {
		if existing.Tier != m.Tier {
			memberships = append(memberships, existing)
		}
	}
	memberships = append(memberships, m)
	return s.repo.UpdateMemberships(ctx, id, memberships)
}

func (s *service) ActiveTiers(ctx context.Context, id string, at time.Time) ([]pricing.Tier, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var tiers []pricing.Tier
	for _, m := range c.Memberships {
		if m.ActiveAt(at) {
			tiers = append(tiers, m.Tier)
		}
	}
	return tiers, nil
}

func (s *service) AwardPoints(ctx context.Context, id string, points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	return s.repo.AddPoints(ctx, id, points)
}

// normalizeEmail trims spaces and lowercases the email.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
