package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/mind-engage/ieltsprep/internal/api/http"
	auth "github.com/mind-engage/ieltsprep/internal/auth/middleware"
	"github.com/mind-engage/ieltsprep/internal/config"
	"github.com/mind-engage/ieltsprep/internal/db"
	"github.com/mind-engage/ieltsprep/internal/events"
	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/grading"
	"github.com/mind-engage/ieltsprep/internal/logging"
	"github.com/mind-engage/ieltsprep/internal/metrics"
	"github.com/mind-engage/ieltsprep/internal/rbac"
	"github.com/mind-engage/ieltsprep/internal/report"
	"github.com/mind-engage/ieltsprep/internal/scores"
	"github.com/mind-engage/ieltsprep/internal/session"
	"github.com/mind-engage/ieltsprep/internal/storage"
	syncx "github.com/mind-engage/ieltsprep/internal/sync"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg)
	os.Exit(exitCode(logger, run(cfg, logger)))
}

// exitCode logs a run failure and flushes the logger before the process exits.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("ieltsd stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()

	tests := exam.NewSQLStore(dbh)
	if cfg.TestsDir != "" {
		n, err := exam.ImportDir(ctx, tests, cfg.TestsDir)
		if err != nil {
			return err
		}
		logger.Info("tests imported", zap.String("dir", cfg.TestsDir), zap.Int("count", n))
	}

	users := auth.NewSQLUserStore(dbh)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := auth.EnsureUser(ctx, users, auth.User{
			Email: cfg.AdminEmail, Name: "Administrator", Role: rbac.RoleAdmin, Approved: true,
		}, cfg.AdminPassword); err != nil {
			return err
		}
	}
	if cfg.ServiceEmail != "" && cfg.ServicePassword != "" {
		if _, err := auth.EnsureUser(ctx, users, auth.User{
			Email: cfg.ServiceEmail, Name: "Test loader", Role: rbac.RoleService, Approved: true,
		}, cfg.ServicePassword); err != nil {
			return err
		}
	}
	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.AuthTokenTTL, cfg.CookieSecure)

	// --- Test loading ---
	var loader exam.Loader = exam.StoreLoader{Store: tests}
	if cfg.TestAPIURL != "" {
		hl := exam.NewHTTPLoader(cfg.TestAPIURL, cfg.UpstreamTimeout)
		hl.Token = cfg.TestAPIToken
		loader = hl
	}
	var cache exam.Cache
	if cfg.RedisURL != "" {
		rdb, err := exam.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = exam.NewRedisCache(rdb)
	}
	loader = exam.NewCachingLoader(loader, cache, cfg.TestCacheTTL, cfg.UpstreamTimeout, logger.Named("loader"))

	// --- Observers ---
	m := metrics.New()
	eventRepo := syncx.NewEventRepo(dbh, "")
	observers := []session.Observer{m, syncx.SessionLog{Repo: eventRepo, Logger: logger}}

	pub, err := events.New(events.Config{
		Backend:      cfg.EventsPublisher,
		KafkaBrokers: cfg.KafkaBrokers,
		Topic:        cfg.EventsTopic,
	}, logger.Named("events"))
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
		observers = append(observers, pub)
	}

	// --- Score reporting ---
	scoreStore := scores.NewSQLStore(dbh)
	factory := report.Factory{
		Scores:   report.StoreScoreClient{Store: scoreStore},
		Identity: report.JWTIdentityChecker{Verify: verifier(authSvc)},
		Observer: m,
		Logger:   logger.Named("report"),
	}
	if cfg.ScoreAPIURL != "" {
		factory.Scores = report.NewHTTPScoreClient(report.HTTPScoreConfig{
			URL:          cfg.ScoreAPIURL,
			Timeout:      cfg.UpstreamTimeout,
			TokenURL:     cfg.ScoreAPITokenURL,
			ClientID:     cfg.ScoreAPIClientID,
			ClientSecret: cfg.ScoreAPIClientSecret,
		})
	}
	if cfg.IdentityURL != "" {
		factory.Identity = report.NewHTTPIdentityChecker(cfg.IdentityURL, cfg.UpstreamTimeout)
	}

	policy, err := gradingPolicy(cfg)
	if err != nil {
		return err
	}
	mgr := session.NewManager(loader, policy, logger.Named("session"),
		session.WithTicker(func() session.Ticker { return session.NewTicker(cfg.SessionTickRate) }),
		session.WithObservers(observers...),
		session.WithReporter(factory.SessionReporter),
		session.WithReportTimeout(cfg.UpstreamTimeout),
		session.WithRetention(cfg.SessionRetention),
	)

	media, err := mediaStore(ctx, cfg)
	if err != nil {
		return err
	}

	// --- Router ---
	router := api.NewRouter(ctx, api.Deps{
		Logger:         logger.Named("http"),
		DB:             dbh,
		Auth:           authSvc,
		Users:          users,
		Tests:          tests,
		Sessions:       mgr,
		Scores:         scoreStore,
		Events:         eventRepo,
		Metrics:        m,
		Media:          media,
		CORSOrigins:    cfg.CORSOrigins,
		ScoreRateLimit: cfg.ScoreRateLimit,
		LoginRateLimit: cfg.LoginRateLimit,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("env", string(cfg.Environment)),
			zap.String("db", cfg.DBDriver),
			zap.String("events", cfg.EventsPublisher))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return mgr.Shutdown(shutCtx)
}

// gradingPolicy maps config onto per-type band scales. Unknown scale names
// fail at startup rather than at the first submit.
func gradingPolicy(cfg config.Config) (grading.Policy, error) {
	p := grading.Policy{
		OrderedMatching: cfg.GradingOrderedMatching,
		Scales: map[exam.TestType]string{
			exam.TypeListening: cfg.BandScaleListening,
			exam.TypeReading:   cfg.BandScaleReading,
		},
	}
	for typ, name := range p.Scales {
		if cfg.GradingFillBandGap && name == grading.ScaleLegacy {
			name = grading.ScaleLegacyFixed
			p.Scales[typ] = name
		}
		if _, err := grading.LookupScale(name); err != nil {
			return grading.Policy{}, fmt.Errorf("band scale for %s: %w", typ, err)
		}
	}
	return p, nil
}

func mediaStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.MediaDriver {
	case "fs", "":
		return storage.NewFSStore(cfg.MediaDir)
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown MEDIA_DRIVER %q", cfg.MediaDriver)
	}
}

func verifier(a *auth.AuthService) func(string) (session.User, error) {
	return func(tok string) (session.User, error) {
		c, err := a.Parse(tok)
		if err != nil {
			return session.User{}, err
		}
		return session.User{ID: c.Sub, Name: c.Name, Email: c.Email, Role: c.Role}, nil
	}
}
