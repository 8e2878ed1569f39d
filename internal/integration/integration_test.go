package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"coptic-quiz-service/internal/app"
	"coptic-quiz-service/internal/catalog"
	"coptic-quiz-service/internal/domain"
	"coptic-quiz-service/internal/infra/postgres"
	pgmigrations "coptic-quiz-service/internal/infra/postgres/migrations"
	infraredis "coptic-quiz-service/internal/infra/redis"
	"coptic-quiz-service/internal/round"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

const adminEmail = "admin@example.org"

type env struct {
	profiles *app.ProfileService
	orgs     *app.OrganizationService
	activity *app.ActivityService
	admin    domain.Actor
}

func newEnv(t *testing.T, ctx context.Context) *env {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	applyMigrations(t, ctx, pgURL)
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	users := postgres.NewProfileStore(pool)
	profiles := app.NewProfileService(users, postgres.NewHistoryStore(pool))
	e := &env{
		profiles: profiles,
		orgs:     app.NewOrganizationService(postgres.NewOrganizationStore(pool), users, profiles, app.NewPolicy([]string{adminEmail})),
		activity: app.NewActivityService(
			infraredis.NewSessionStore(redisClient, 5*time.Minute),
			round.NewGenerator(catalog.Default(), nil),
			profiles,
		),
	}
	admin, err := profiles.EnsureProfile(ctx, domain.Identity{ID: "admin", DisplayName: "Admin", Email: adminEmail})
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	e.admin = domain.ActorFromProfile(admin)
	return e
}

func TestActivityEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ctx)

	org, err := e.orgs.CreateOrganization(ctx, e.admin, "St. Mark", "Primary parish leaderboard")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if _, err := e.profiles.EnsureProfile(ctx, domain.Identity{ID: "u1", DisplayName: "Mina"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := e.orgs.ChooseOrganization(ctx, "u1", org.ID); err != nil {
		t.Fatalf("choose: %v", err)
	}

	rnd, err := e.activity.Start(ctx, "u1", "conn-1", domain.ActivityWordPronunciation)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var res app.AnswerResult
	for {
		res, err = e.activity.Answer(ctx, "u1", rnd.Number, rnd.Answer)
		if err != nil {
			t.Fatalf("answer round %d: %v", rnd.Number, err)
		}
		if res.Completed {
			break
		}
		rnd = res.Next
	}
	// five correct word rounds plus the last-round bonus
	if res.XPAwarded != 18 || res.Profile.XP != 18 {
		t.Fatalf("unexpected completion %+v", res)
	}

	history, err := e.profiles.History(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Activity != domain.ActivityWordPronunciation || history[0].XPEarned != 18 {
		t.Fatalf("unexpected history %+v", history)
	}

	lb, err := e.orgs.ListLeaderboard(ctx, domain.OrganizationScope(org.ID))
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" || lb.Entries[0].XP != 18 {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}
}

func TestConcurrentAwardsAreSerialized(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ctx)
	if _, err := e.profiles.EnsureProfile(ctx, domain.Identity{ID: "u1", DisplayName: "Mina"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.profiles.ApplyXP(ctx, "u1", 25); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := e.profiles.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.XP != 250 || p.Level != 3 {
		t.Fatalf("expected xp=250 level=3, got %+v", p)
	}
}

func TestDeleteOrganizationInUse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ctx)

	org, err := e.orgs.CreateOrganization(ctx, e.admin, "St. Mary", "")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	other, err := e.orgs.CreateOrganization(ctx, e.admin, "St. George", "")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if _, err := e.profiles.EnsureProfile(ctx, domain.Identity{ID: "u1", DisplayName: "Mina"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := e.orgs.AssignMember(ctx, e.admin, "u1", org.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := e.orgs.DeleteOrganization(ctx, e.admin, org.ID); !errors.Is(err, domain.ErrOrganizationInUse) {
		t.Fatalf("expected ErrOrganizationInUse, got %v", err)
	}
	if _, err := e.orgs.AssignMember(ctx, e.admin, "u1", other.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if err := e.orgs.DeleteOrganization(ctx, e.admin, org.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.orgs.AssignMember(ctx, e.admin, "u1", org.ID); !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound after delete, got %v", err)
	}
}

func TestProfileSubscriptionFollowsNotifications(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, ctx)
	if _, err := e.profiles.EnsureProfile(ctx, domain.Identity{ID: "u1", DisplayName: "Mina"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	ch, cancel, err := e.profiles.SubscribeProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch

	if _, err := e.profiles.ApplyXP(ctx, "u1", 14); err != nil {
		t.Fatalf("apply: %v", err)
	}
	select {
	case p := <-ch:
		if p.XP != 14 {
			t.Fatalf("expected xp 14, got %+v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for profile notification")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
