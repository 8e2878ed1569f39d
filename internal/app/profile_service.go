package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"coptic-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

// ProfileService owns the XP counter and the level derived from it.
type ProfileService struct {
	profiles ProfileRepository
	history  HistoryRepository
	validate *validator.Validate
	now      func() time.Time
	maxAward int
}

// ProfileOption customizes a ProfileService.
type ProfileOption func(*ProfileService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) ProfileOption {
	return func(s *ProfileService) { s.now = now }
}

// WithMaxAward rejects ApplyXP deltas above max. Zero disables the ceiling.
func WithMaxAward(max int) ProfileOption {
	return func(s *ProfileService) { s.maxAward = max }
}

func NewProfileService(profiles ProfileRepository, history HistoryRepository, opts ...ProfileOption) *ProfileService {
	s := &ProfileService{
		profiles: profiles,
		history:  history,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureProfile creates the profile for a newly seen identity, or returns the
// existing one untouched. Creation is conditional in the store, so concurrent
// first logins converge on one record.
func (s *ProfileService) EnsureProfile(ctx context.Context, identity domain.Identity) (domain.UserProfile, error) {
	identity.ID = strings.TrimSpace(identity.ID)
	identity.DisplayName = strings.TrimSpace(identity.DisplayName)
	identity.Email = strings.TrimSpace(identity.Email)
	if err := s.validate.Struct(identity); err != nil {
		return domain.UserProfile{}, validationError("invalid identity", err)
	}

	now := s.now().UTC()
	profile, created, err := s.profiles.CreateIfAbsent(ctx, domain.UserProfile{
		ID:           identity.ID,
		DisplayName:  identity.DisplayName,
		Email:        identity.Email,
		AvatarURL:    identity.AvatarURL,
		XP:           0,
		Level:        domain.LevelForXP(0),
		CreatedAt:    now,
		LastActiveAt: now,
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	if created {
		log.Printf("profile created for user %s", profile.ID)
	}
	return profile, nil
}

// Profile returns the stored profile.
func (s *ProfileService) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	return s.profiles.Get(ctx, userID)
}

// ApplyXP adds delta to the user's XP and recomputes the level atomically.
// A zero delta still refreshes LastActiveAt.
func (s *ProfileService) ApplyXP(ctx context.Context, userID string, delta int) (domain.UserProfile, error) {
	if delta < 0 {
		return domain.UserProfile{}, domain.NewValidationError("invalid xp award",
			domain.FieldError{Field: "delta", Error: "must not be negative"})
	}
	if s.maxAward > 0 && delta > s.maxAward {
		return domain.UserProfile{}, domain.NewValidationError("invalid xp award",
			domain.FieldError{Field: "delta", Error: fmt.Sprintf("must be at most %d", s.maxAward)})
	}
	now := s.now().UTC()
	return s.profiles.Update(ctx, userID, func(p *domain.UserProfile) error {
		p.XP += delta
		p.Level = domain.LevelForXP(p.XP)
		p.LastActiveAt = now
		return nil
	})
}

// SetOrganization assigns the user's primary organization, copying its name
// onto the profile for display. XP and level are untouched.
func (s *ProfileService) SetOrganization(ctx context.Context, userID, organizationID, organizationName string) (domain.UserProfile, error) {
	return s.profiles.Update(ctx, userID, func(p *domain.UserProfile) error {
		p.OrganizationID = organizationID
		p.OrganizationName = organizationName
		return nil
	})
}

// renameOrganization refreshes the denormalized name if the user is still a member.
func (s *ProfileService) renameOrganization(ctx context.Context, userID, organizationID, organizationName string) error {
	_, err := s.profiles.Update(ctx, userID, func(p *domain.UserProfile) error {
		if p.OrganizationID == organizationID {
			p.OrganizationName = organizationName
		}
		return nil
	})
	return err
}

// SetAdminScope makes the user an org admin of organizationID, or clears the
// role when organizationID is empty.
func (s *ProfileService) SetAdminScope(ctx context.Context, userID, organizationID string) (domain.UserProfile, error) {
	return s.profiles.Update(ctx, userID, func(p *domain.UserProfile) error {
		p.AdminOrganizationID = organizationID
		return nil
	})
}

// RecordActivity appends a finished activity to the user's history.
func (s *ProfileService) RecordActivity(ctx context.Context, userID string, activity domain.ActivityKind, xp int) error {
	return s.history.Append(ctx, userID, domain.ActivityRecord{
		Activity:  activity,
		XPEarned:  xp,
		Timestamp: s.now().UTC(),
	})
}

// History returns up to domain.HistoryLimit records, newest first.
func (s *ProfileService) History(ctx context.Context, userID string) ([]domain.ActivityRecord, error) {
	if _, err := s.profiles.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.history.List(ctx, userID)
}

// SubscribeProfile streams the user's profile whenever it changes.
func (s *ProfileService) SubscribeProfile(ctx context.Context, userID string) (<-chan domain.UserProfile, func(), error) {
	return subscribe(ctx, s.profiles.Watch,
		func(ctx context.Context) (domain.UserProfile, error) { return s.profiles.Get(ctx, userID) },
		func(a, b domain.UserProfile) bool { return a == b },
	)
}
