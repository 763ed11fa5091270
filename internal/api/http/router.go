package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	auth "github.com/mind-engage/ieltsprep/internal/auth/middleware"
	"github.com/mind-engage/ieltsprep/internal/exam"
	"github.com/mind-engage/ieltsprep/internal/metrics"
	"github.com/mind-engage/ieltsprep/internal/rbac"
	"github.com/mind-engage/ieltsprep/internal/scores"
	"github.com/mind-engage/ieltsprep/internal/session"
	"github.com/mind-engage/ieltsprep/internal/storage"
	syncx "github.com/mind-engage/ieltsprep/internal/sync"
)

type Deps struct {
	Logger   *zap.Logger
	DB       *sql.DB
	Auth     *auth.AuthService
	Users    auth.UserStore
	Tests    exam.Store
	Sessions *session.Manager
	Scores   scores.Store
	Events   *syncx.EventRepo  // optional
	Metrics  *metrics.Metrics  // optional
	Media    storage.BlobStore // optional

	CORSOrigins    []string
	ScoreRateLimit int // per minute per IP
	LoginRateLimit int
}

// NewRouter mounts every route. ctx bounds the rate limiter sweepers.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(d.Logger), middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(d.DB))

	if d.Media != nil {
		r.Get("/media/*", GetMediaHandler(d.Media))
	}

	loginLimit := RateLimiter(ctx, d.LoginRateLimit, time.Minute)
	r.Get("/api/checkLogin", auth.CheckLoginHandler(d.Auth))
	r.With(loginLimit).Post("/api/auth/login", auth.LoginHandler(d.Auth, d.Users))
	r.With(loginLimit).Post("/api/auth/register", auth.RegisterHandler(d.Users))
	r.Post("/api/auth/logout", auth.LogoutHandler(d.Auth))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Authenticate(d.Auth))
		pr.Post("/api/auth/refresh", auth.RefreshHandler(d.Auth, d.Users))
		pr.Post("/api/auth/password", auth.ChangePasswordHandler(d.Users))

		// Loader contract for instances pointing TEST_API_URL here. Answers
		// are included, so only admin and service tokens may read it.
		pr.With(rbac.Require(rbac.PermTestKey)).
			Get("/tests/by-slug/{slug}", GetTestBySlugHandler(d.Tests))

		pr.With(rbac.Require(rbac.PermUserApprove)).
			Post("/api/users/{id}/approve", auth.ApproveHandler(d.Users))

		pr.Group(func(ar chi.Router) {
			ar.Use(auth.RequireApproved)

			ar.With(rbac.Require(rbac.PermTestView)).
				Get("/api/tests", ListTestsHandler(d.Tests))
			ar.With(rbac.Require(rbac.PermTestManage)).
				Put("/api/tests/{slug}", PutTestHandler(d.Tests))
			if d.Media != nil {
				ar.With(rbac.Require(rbac.PermTestManage)).
					Put("/api/media/*", UploadMediaHandler(d.Media))
			}

			ar.Route("/api/sessions", func(sr chi.Router) {
				sr.Use(rbac.Require(rbac.PermSessionTake))
				sr.Post("/", StartSessionHandler(d.Sessions))
				sr.Get("/{id}", GetSessionHandler(d.Sessions))
				sr.Delete("/{id}", CloseSessionHandler(d.Sessions))
				sr.Put("/{id}/answers/{qn}", SetAnswerHandler(d.Sessions))
				sr.Post("/{id}/answers/{qn}/toggle", ToggleAnswerHandler(d.Sessions))
				sr.Post("/{id}/passage", SelectPassageHandler(d.Sessions))
				sr.Post("/{id}/focus", FocusQuestionHandler(d.Sessions))
				sr.Post("/{id}/submit", SubmitSessionHandler(d.Sessions))
				sr.Get("/{id}/report", ReportStateHandler(d.Sessions))
				sr.Post("/{id}/report", RetryReportHandler(d.Sessions))
			})

			ar.With(rbac.Require(rbac.PermScoreSave), RateLimiter(ctx, d.ScoreRateLimit, time.Minute)).
				Post("/api/scores", SaveScoreHandler(d.Scores, d.Logger))
			ar.With(rbac.Require(rbac.PermScoreViewOwn)).
				Get("/api/scores/me", MyScoresHandler(d.Scores))
			ar.With(rbac.Require(rbac.PermScoreExport)).
				Get("/api/scores/export", ExportScoresHandler(d.Scores))

			if d.Events != nil {
				ar.With(rbac.Require(rbac.PermEventsRead)).
					Get("/api/events", ListEventsHandler(d.Events))
			}
		})
	})

	return r
}
