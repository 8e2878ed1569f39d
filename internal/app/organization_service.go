package app

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"time"

	"coptic-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// OrganizationService maintains organizations, membership and leaderboards.
type OrganizationService struct {
	orgs     OrganizationRepository
	users    ProfileRepository
	profiles *ProfileService
	policy   *Policy
	validate *validator.Validate
	now      func() time.Time
	sf       singleflight.Group
}

func NewOrganizationService(orgs OrganizationRepository, users ProfileRepository, profiles *ProfileService, policy *Policy) *OrganizationService {
	return &OrganizationService{
		orgs:     orgs,
		users:    users,
		profiles: profiles,
		policy:   policy,
		validate: newValidator(),
		now:      time.Now,
	}
}

type organizationRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
}

func (s *OrganizationService) checkRequest(name, description string) (organizationRequest, error) {
	req := organizationRequest{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := s.validate.Struct(req); err != nil {
		return req, validationError("invalid organization", err)
	}
	return req, nil
}

// CreateOrganization is reserved to full administrators.
func (s *OrganizationService) CreateOrganization(ctx context.Context, actor domain.Actor, name, description string) (domain.Organization, error) {
	if !s.policy.IsFullAdmin(actor) {
		return domain.Organization{}, domain.ErrForbidden
	}
	req, err := s.checkRequest(name, description)
	if err != nil {
		return domain.Organization{}, err
	}
	org := domain.Organization{ID: uuid.NewString(), Name: req.Name, Description: req.Description}
	if err := s.orgs.Create(ctx, org); err != nil {
		return domain.Organization{}, err
	}
	log.Printf("organization %s (%q) created by %s", org.ID, org.Name, actor.UserID)
	return org, nil
}

// SeedOrganizations creates the configured organizations that do not exist yet.
func (s *OrganizationService) SeedOrganizations(ctx context.Context, seeds []domain.Organization) error {
	for _, seed := range seeds {
		if _, err := s.orgs.Get(ctx, seed.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrOrganizationNotFound) {
			return err
		}
		req, err := s.checkRequest(seed.Name, seed.Description)
		if err != nil {
			return err
		}
		if err := s.orgs.Create(ctx, domain.Organization{ID: seed.ID, Name: req.Name, Description: req.Description}); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrganization edits name and description. A rename is copied onto the
// members' profiles one at a time, so readers may briefly see the old name.
func (s *OrganizationService) UpdateOrganization(ctx context.Context, actor domain.Actor, id, name, description string) (domain.Organization, error) {
	if err := s.policy.AuthorizeOrganization(actor, id); err != nil {
		return domain.Organization{}, err
	}
	req, err := s.checkRequest(name, description)
	if err != nil {
		return domain.Organization{}, err
	}
	existing, err := s.orgs.Get(ctx, id)
	if err != nil {
		return domain.Organization{}, err
	}
	updated := domain.Organization{ID: id, Name: req.Name, Description: req.Description}
	if err := s.orgs.Update(ctx, updated); err != nil {
		return domain.Organization{}, err
	}
	if existing.Name != updated.Name {
		members, err := s.users.List(ctx, domain.OrganizationScope(id))
		if err != nil {
			return updated, err
		}
		for _, m := range members {
			if err := s.profiles.renameOrganization(ctx, m.ID, id, updated.Name); err != nil {
				return updated, err
			}
		}
	}
	return updated, nil
}

// DeleteOrganization refuses while any profile still references the
// organization. The store re-checks membership when it commits the delete.
func (s *OrganizationService) DeleteOrganization(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.policy.AuthorizeOrganization(actor, id); err != nil {
		return err
	}
	n, err := s.users.CountMembers(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrOrganizationInUse
	}
	if err := s.orgs.DeleteIfUnused(ctx, id); err != nil {
		return err
	}
	log.Printf("organization %s deleted by %s", id, actor.UserID)
	return nil
}

// Organization returns a single organization.
func (s *OrganizationService) Organization(ctx context.Context, id string) (domain.Organization, error) {
	return s.orgs.Get(ctx, id)
}

// ListOrganizations is the public directory users choose from.
func (s *OrganizationService) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	return s.orgs.List(ctx)
}

// ManagedOrganizations lists what the actor administers: everything for a
// full admin, the own organization for an org admin.
func (s *OrganizationService) ManagedOrganizations(ctx context.Context, actor domain.Actor) ([]domain.Organization, error) {
	if s.policy.IsFullAdmin(actor) {
		return s.orgs.List(ctx)
	}
	if actor.AdminOrganizationID == "" {
		return nil, domain.ErrForbidden
	}
	org, err := s.orgs.Get(ctx, actor.AdminOrganizationID)
	if errors.Is(err, domain.ErrOrganizationNotFound) {
		return []domain.Organization{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []domain.Organization{org}, nil
}

// SubscribeOrganizations streams ManagedOrganizations whenever organizations change.
func (s *OrganizationService) SubscribeOrganizations(ctx context.Context, actor domain.Actor) (<-chan []domain.Organization, func(), error) {
	if !s.policy.IsAdmin(actor) {
		return nil, nil, domain.ErrForbidden
	}
	return subscribe(ctx, s.orgs.Watch,
		func(ctx context.Context) ([]domain.Organization, error) { return s.ManagedOrganizations(ctx, actor) },
		func(a, b []domain.Organization) bool { return slices.Equal(a, b) },
	)
}

// AssignMember moves a user into an organization. Org admins can only assign
// into their own organization. When a full admin moves an org admin, the
// admin scope follows the user.
func (s *OrganizationService) AssignMember(ctx context.Context, actor domain.Actor, userID, organizationID string) (domain.UserProfile, error) {
	if err := s.policy.AuthorizeOrganization(actor, organizationID); err != nil {
		return domain.UserProfile{}, err
	}
	org, err := s.orgs.Get(ctx, organizationID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	profile, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if !s.policy.IsFullAdmin(actor) && profile.OrganizationID != "" && profile.OrganizationID != organizationID {
		// an org admin cannot pull members out of another organization
		if err := s.policy.AuthorizeOrganization(actor, profile.OrganizationID); err != nil {
			return domain.UserProfile{}, err
		}
	}
	updated, err := s.profiles.SetOrganization(ctx, userID, org.ID, org.Name)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if s.policy.IsFullAdmin(actor) && updated.AdminOrganizationID != "" && updated.AdminOrganizationID != org.ID {
		return s.profiles.SetAdminScope(ctx, userID, org.ID)
	}
	return updated, nil
}

// ChooseOrganization lets a user without an organization pick one.
// Changing an existing membership is an admin operation.
func (s *OrganizationService) ChooseOrganization(ctx context.Context, userID, organizationID string) (domain.UserProfile, error) {
	profile, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if profile.OrganizationID == organizationID {
		return profile, nil
	}
	if profile.OrganizationID != "" {
		return domain.UserProfile{}, domain.ErrForbidden
	}
	org, err := s.orgs.Get(ctx, organizationID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return s.profiles.SetOrganization(ctx, userID, org.ID, org.Name)
}

// SetOrgAdmin grants or clears (empty organizationID) org-admin scope.
// Only full administrators can do this.
func (s *OrganizationService) SetOrgAdmin(ctx context.Context, actor domain.Actor, userID, organizationID string) (domain.UserProfile, error) {
	if !s.policy.IsFullAdmin(actor) {
		return domain.UserProfile{}, domain.ErrForbidden
	}
	if organizationID != "" {
		if _, err := s.orgs.Get(ctx, organizationID); err != nil {
			return domain.UserProfile{}, err
		}
	}
	return s.profiles.SetAdminScope(ctx, userID, organizationID)
}

// ListMembers is the admin view of profiles within a scope.
func (s *OrganizationService) ListMembers(ctx context.Context, actor domain.Actor, scope domain.Scope) ([]domain.UserProfile, error) {
	if err := s.policy.AuthorizeScope(actor, scope); err != nil {
		return nil, err
	}
	return s.users.List(ctx, scope)
}

// ListLeaderboard ranks every profile in scope by XP, highest first. Ties keep
// insertion order. Concurrent reads of the same scope share one store query,
// which outlives any single caller giving up.
func (s *OrganizationService) ListLeaderboard(ctx context.Context, scope domain.Scope) (domain.Leaderboard, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.sf.DoChan("leaderboard:"+scope.OrganizationID, func() (interface{}, error) {
		return s.leaderboard(shared, scope)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.Leaderboard{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.Leaderboard{}, res.Err
	}
	lb := res.Val.(domain.Leaderboard)
	// callers may truncate Entries; never share the backing array
	lb.Entries = slices.Clone(lb.Entries)
	return lb, nil
}

func (s *OrganizationService) leaderboard(ctx context.Context, scope domain.Scope) (domain.Leaderboard, error) {
	profiles, err := s.users.List(ctx, scope)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return rank(scope, profiles, s.now().UTC()), nil
}

// SubscribeLeaderboard delivers the current ranking immediately and again
// whenever a profile change alters it. Reloads skip the shared read: a call
// already in flight may predate the change that triggered the reload.
func (s *OrganizationService) SubscribeLeaderboard(ctx context.Context, scope domain.Scope) (<-chan domain.Leaderboard, func(), error) {
	return subscribe(ctx, s.users.Watch,
		func(ctx context.Context) (domain.Leaderboard, error) { return s.leaderboard(ctx, scope) },
		func(a, b domain.Leaderboard) bool { return slices.Equal(a.Entries, b.Entries) },
	)
}

func rank(scope domain.Scope, profiles []domain.UserProfile, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		if !scope.Includes(p) {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			XP:          p.XP,
			Level:       p.Level,
		})
	}
	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return b.XP - a.XP
	})
	return domain.Leaderboard{Scope: scope, Entries: entries, UpdatedAt: now}
}
