package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coptic-quiz-service/internal/app"
	"coptic-quiz-service/internal/catalog"
	"coptic-quiz-service/internal/config"
	"coptic-quiz-service/internal/domain"
	"coptic-quiz-service/internal/infra/memory"
	"coptic-quiz-service/internal/infra/postgres"
	redisstore "coptic-quiz-service/internal/infra/redis"
	"coptic-quiz-service/internal/round"
	transport "coptic-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores bundles the repositories chosen by configuration.
type stores struct {
	profiles app.ProfileRepository
	orgs     app.OrganizationRepository
	history  app.HistoryRepository
	sessions app.SessionRepository
	close    func()
}

// openStores picks PostgreSQL when configured, else Redis, else memory.
// Play sessions use Redis liveness markers whenever Redis is configured.
func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return stores{}, err
		}
	}
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var s stores
	if redisClient != nil {
		s.sessions = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Session.TTL, 30*time.Minute))
	} else {
		s.sessions = memory.NewSessionStore()
	}

	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			closeAll()
			return stores{}, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return stores{}, err
		}
		closers = append(closers, pool.Close)
		s.profiles = postgres.NewProfileStore(pool)
		s.orgs = postgres.NewOrganizationStore(pool)
		s.history = postgres.NewHistoryStore(pool)
		log.Printf("using postgres store")
	case redisClient != nil:
		s.profiles = redisstore.NewProfileStore(redisClient)
		s.orgs = redisstore.NewOrganizationStore(redisClient)
		s.history = redisstore.NewHistoryStore(redisClient)
		log.Printf("using redis store at %s", cfg.Redis.Addr)
	default:
		db := memory.NewDB()
		s.profiles = memory.NewProfileStore(db)
		s.orgs = memory.NewOrganizationStore(db)
		s.history = memory.NewHistoryStore(db)
		log.Printf("using in-memory store; state is lost on restart")
	}
	s.close = closeAll
	return s, nil
}

// services are the use cases shared by the HTTP and WebSocket surfaces.
type services struct {
	profiles *app.ProfileService
	orgs     *app.OrganizationService
	activity *app.ActivityService
	catalog  *catalog.Catalog
}

func newServices(cfg config.Config, s stores) services {
	profiles := app.NewProfileService(s.profiles, s.history, app.WithMaxAward(cfg.XP.MaxAward))
	cat := catalog.Default()
	return services{
		profiles: profiles,
		orgs:     app.NewOrganizationService(s.orgs, s.profiles, profiles, app.NewPolicy(cfg.Admin.Emails)),
		activity: app.NewActivityService(s.sessions, round.NewGenerator(cat, nil), profiles),
		catalog:  cat,
	}
}

func seedOrganizations(cfg config.Config) []domain.Organization {
	seeds := make([]domain.Organization, 0, len(cfg.Organizations))
	for _, o := range cfg.Organizations {
		seeds = append(seeds, domain.Organization{ID: o.ID, Name: o.Name, Description: o.Description})
	}
	return seeds
}

func newMux(auth *transport.Authenticator, svc services) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewAPIHandler(auth, svc.profiles, svc.orgs, svc.catalog).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(auth, svc.profiles, svc.orgs, svc.activity).ServeWS)
	return mux
}

// checkAuth refuses admin emails without a token secret: unverified
// identities would let anyone claim an admin address.
func checkAuth(cfg config.Config) error {
	if cfg.Auth.Secret != "" {
		return nil
	}
	if len(cfg.Admin.Emails) > 0 {
		return fmt.Errorf("admin.emails requires auth.secret: query-parameter identities are unverified")
	}
	log.Printf("auth secret not configured; trusting query-parameter identities")
	return nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := checkAuth(cfg); err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	svc := newServices(cfg, s)
	if err := svc.orgs.SeedOrganizations(ctx, seedOrganizations(cfg)); err != nil {
		return err
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     newMux(transport.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer), svc),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: it would cut long-lived WebSocket connections
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
