package app_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"coptic-quiz-service/internal/app"
	"coptic-quiz-service/internal/catalog"
	"coptic-quiz-service/internal/domain"
	"coptic-quiz-service/internal/infra/memory"
	"coptic-quiz-service/internal/round"
)

const adminEmail = "admin@example.org"

type testEnv struct {
	users    *memory.ProfileStore
	orgs     *memory.OrganizationStore
	profiles *app.ProfileService
	orgSvc   *app.OrganizationService
	activity *app.ActivityService
	admin    domain.Actor
}

func newTestEnv(t *testing.T, opts ...app.ProfileOption) *testEnv {
	t.Helper()
	db := memory.NewDB()
	users := memory.NewProfileStore(db)
	return newTestEnvWith(t, db, users, opts...)
}

func newTestEnvWith(t *testing.T, db *memory.DB, users app.ProfileRepository, opts ...app.ProfileOption) *testEnv {
	t.Helper()
	clock := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	opts = append([]app.ProfileOption{app.WithClock(func() time.Time { return clock })}, opts...)

	orgs := memory.NewOrganizationStore(db)
	profiles := app.NewProfileService(users, memory.NewHistoryStore(db), opts...)
	policy := app.NewPolicy([]string{" Admin@Example.org "})
	generator := round.NewGenerator(catalog.Default(), rand.New(rand.NewPCG(7, 11)))

	env := &testEnv{
		orgs:     orgs,
		profiles: profiles,
		orgSvc:   app.NewOrganizationService(orgs, users, profiles, policy),
		activity: app.NewActivityService(memory.NewSessionStore(), generator, profiles),
	}
	if ps, ok := users.(*memory.ProfileStore); ok {
		env.users = ps
	}
	env.admin = env.ensure(t, "admin", adminEmail)
	return env
}

// ensure creates a profile and returns it as an actor.
func (e *testEnv) ensure(t *testing.T, id, email string) domain.Actor {
	t.Helper()
	p, err := e.profiles.EnsureProfile(context.Background(), domain.Identity{ID: id, DisplayName: "User " + id, Email: email})
	if err != nil {
		t.Fatalf("ensure profile %s: %v", id, err)
	}
	return domain.ActorFromProfile(p)
}

func (e *testEnv) createOrg(t *testing.T, name string) domain.Organization {
	t.Helper()
	org, err := e.orgSvc.CreateOrganization(context.Background(), e.admin, name, "")
	if err != nil {
		t.Fatalf("create organization %q: %v", name, err)
	}
	return org
}

func (e *testEnv) assign(t *testing.T, userID, orgID string) {
	t.Helper()
	if _, err := e.orgSvc.AssignMember(context.Background(), e.admin, userID, orgID); err != nil {
		t.Fatalf("assign %s to %s: %v", userID, orgID, err)
	}
}

func wrongOption(r *domain.Round) string {
	for _, o := range r.Options {
		if o != r.Answer {
			return o
		}
	}
	return ""
}
