package app

import (
	"context"

	"coptic-quiz-service/internal/domain"
)

// ProfileRepository abstracts the users collection (in-memory, Redis, Postgres).
type ProfileRepository interface {
	// CreateIfAbsent stores p unless a profile with the same id exists. It
	// returns the stored profile and whether this call created it.
	CreateIfAbsent(ctx context.Context, p domain.UserProfile) (domain.UserProfile, bool, error)
	Get(ctx context.Context, id string) (domain.UserProfile, error)
	// Update runs mutate against the current record inside the store's atomic
	// read-modify-write primitive and persists the result.
	Update(ctx context.Context, id string, mutate func(*domain.UserProfile) error) (domain.UserProfile, error)
	// List returns the profiles in scope in insertion order.
	List(ctx context.Context, scope domain.Scope) ([]domain.UserProfile, error)
	CountMembers(ctx context.Context, organizationID string) (int, error)
	// Watch signals after any profile change. The caller must invoke the
	// returned cancel function to release the subscription.
	Watch(ctx context.Context) (<-chan struct{}, func(), error)
}

// OrganizationRepository abstracts the organizations collection.
type OrganizationRepository interface {
	Create(ctx context.Context, org domain.Organization) error
	Get(ctx context.Context, id string) (domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
	Update(ctx context.Context, org domain.Organization) error
	// DeleteIfUnused removes the organization only if no profile references it
	// at commit time, returning domain.ErrOrganizationInUse otherwise.
	DeleteIfUnused(ctx context.Context, id string) error
	Watch(ctx context.Context) (<-chan struct{}, func(), error)
}

// HistoryRepository keeps the capped per-user activity history.
type HistoryRepository interface {
	Append(ctx context.Context, userID string, rec domain.ActivityRecord) error
	// List returns the newest records first.
	List(ctx context.Context, userID string) ([]domain.ActivityRecord, error)
}

// SessionRepository abstracts where live activity sessions are kept.
type SessionRepository interface {
	GetOrCreate(userID string) *PlaySession
	Get(userID string) (*PlaySession, bool)
	// Touch records activity on the user's session.
	Touch(userID string)
	Delete(userID string)
}

// RoundGenerator produces quiz rounds.
type RoundGenerator interface {
	Generate(activity domain.ActivityKind) (*domain.Round, error)
}
