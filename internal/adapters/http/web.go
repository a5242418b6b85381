// Package web serves the JSON API, the health and metrics endpoints and the
// single-page frontend.
package web

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"fellowship/internal/adapters/auth"
	"fellowship/internal/adapters/http/middleware"
	"fellowship/internal/adapters/http/perf"
	"fellowship/internal/adapters/metrics"
	announcementStore "fellowship/internal/adapters/storage/announcement"
	auditStore "fellowship/internal/adapters/storage/audit"
	eventStore "fellowship/internal/adapters/storage/event"
	memberStore "fellowship/internal/adapters/storage/member"
	messageStore "fellowship/internal/adapters/storage/message"
	pushStore "fellowship/internal/adapters/storage/push"
	"fellowship/internal/adapters/telemetry"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/application/projections"
	"fellowship/internal/domain/member"
)

// Stores holds all storage dependencies.
type Stores struct {
	Members       memberStore.Store
	Events        eventStore.Store
	RSVPs         eventStore.RSVPStore
	Announcements announcementStore.Store
	Views         announcementStore.ViewStore
	Messages      messageStore.Store
	Push          pushStore.Store
	Audit         auditStore.Store
}

// Deps is everything the HTTP layer needs. Optional fields say so.
type Deps struct {
	Stores Stores
	Ping   func(ctx context.Context) error

	Tokens   *auth.Issuer
	Auditor  *orchestrators.Auditor
	Notifier orchestrators.Notifier // optional

	Metrics   *metrics.Metrics    // optional
	Perf      *perf.Collector     // optional
	Telemetry *telemetry.Provider // optional
	Markdown  goldmark.Markdown   // optional

	// Limiter applies to every request; AuthLimiter additionally to login,
	// register and refresh.
	Limiter     middleware.Limiter
	AuthLimiter middleware.Limiter

	BaseURL        string
	StaticDir      string // optional; serves the frontend with index.html fallback
	VAPIDPublicKey string // optional
	SlowRequest    time.Duration

	GenerateID func() string
	Now        func() time.Time
	Log        *zap.SugaredLogger
}

// Server holds the handlers' dependencies.
type Server struct {
	deps Deps
	log  *zap.SugaredLogger
}

// NewServer fills in defaults for optional clock, ID and logger fields.
func NewServer(deps Deps) *Server {
	if deps.GenerateID == nil {
		deps.GenerateID = func() string { return uuid.New().String() }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	if deps.Ping == nil {
		deps.Ping = func(context.Context) error { return nil }
	}
	if deps.Markdown == nil {
		deps.Markdown = projections.NewMarkdown()
	}
	return &Server{deps: deps, log: deps.Log}
}

// NewMux wires HTTP handlers for the app.
func NewMux(deps Deps) http.Handler {
	return NewServer(deps).Handler()
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	// Applied inside out: RecordRoute wraps the mux, Recover is outermost.
	chain := []func(http.Handler) http.Handler{
		middleware.RecordRoute,
		middleware.Auth(s.deps.Tokens, s.deps.Stores.Members),
	}
	if s.deps.Limiter != nil {
		chain = append(chain, middleware.RateLimit("global", s.deps.Limiter, s.deps.Metrics, s.log))
	}
	chain = append(chain, middleware.SecurityHeaders)
	if s.deps.Telemetry != nil {
		chain = append(chain, s.deps.Telemetry.Handler)
	}
	chain = append(chain,
		middleware.Timing(middleware.TimingConfig{
			Collector: s.deps.Perf,
			Observer:  s.deps.Metrics,
			Log:       s.log,
			Slow:      s.deps.SlowRequest,
		}),
		middleware.Recover(s.log),
	)
	return middleware.Chain(mux, chain...)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	authed := middleware.RequireAuth(s.log)
	admin := middleware.RequireRole(s.log, member.RoleAdmin)
	organiser := middleware.RequireRole(s.log, member.RoleAdmin, member.RoleLeader)
	public := func(h http.Handler) http.Handler { return h }
	strict := public
	if s.deps.AuthLimiter != nil {
		strict = middleware.RateLimit("auth", s.deps.AuthLimiter, s.deps.Metrics, s.log)
	}

	routes := []struct {
		pattern string
		guard   func(http.Handler) http.Handler
		handler http.HandlerFunc
	}{
		{"POST /api/auth/register", strict, s.handleRegister},
		{"POST /api/auth/login", strict, s.handleLogin},
		{"POST /api/auth/refresh", strict, s.handleRefresh},
		{"GET /api/me", authed, s.handleGetMe},
		{"PATCH /api/me", authed, s.handleUpdateMe},
		{"PUT /api/me/password", authed, s.handleChangePassword},

		{"GET /api/members", authed, s.handleListMembers},
		{"POST /api/members", admin, s.handleCreateMember},
		{"GET /api/members/{id}", authed, s.handleGetMember},
		{"PATCH /api/members/{id}", admin, s.handleUpdateMember},
		{"POST /api/members/{id}/deactivate", admin, s.handleDeactivateMember},
		{"POST /api/members/{id}/reactivate", admin, s.handleReactivateMember},

		{"GET /api/events", authed, s.handleListEvents},
		{"POST /api/events", organiser, s.handleCreateEvent},
		{"GET /api/events/{id}", authed, s.handleGetEvent},
		{"PATCH /api/events/{id}", organiser, s.handleUpdateEvent},
		{"POST /api/events/{id}/cancel", organiser, s.handleCancelEvent},
		{"DELETE /api/events/{id}", admin, s.handleDeleteEvent},
		{"GET /api/events/{id}/rsvps", organiser, s.handleListRSVPs},
		{"POST /api/events/{id}/rsvp", authed, s.handleCreateRSVP},
		{"PUT /api/events/{id}/rsvp", authed, s.handleChangeRSVP},
		{"DELETE /api/events/{id}/rsvp", authed, s.handleWithdrawRSVP},
		{"GET /api/calendar.ics", public, s.handleCalendar},

		{"GET /api/announcements", authed, s.handleListAnnouncements},
		{"POST /api/announcements", admin, s.handleCreateAnnouncement},
		{"GET /api/announcements/{id}", authed, s.handleGetAnnouncement},
		{"PATCH /api/announcements/{id}", admin, s.handleUpdateAnnouncement},
		{"POST /api/announcements/{id}/publish", admin, s.handlePublishAnnouncement},
		{"DELETE /api/announcements/{id}", admin, s.handleDeleteAnnouncement},
		{"POST /api/announcements/{id}/view", authed, s.handleViewAnnouncement},

		{"GET /api/messages", authed, s.handleInbox},
		{"GET /api/messages/sent", authed, s.handleSent},
		{"POST /api/messages", authed, s.handleSendMessage},
		{"GET /api/messages/{id}", authed, s.handleReadMessage},
		{"DELETE /api/messages/{id}", authed, s.handleDeleteMessage},

		{"GET /api/push/vapid-public-key", public, s.handleVAPIDKey},
		{"GET /api/push/subscriptions", authed, s.handleListSubscriptions},
		{"POST /api/push/subscriptions", authed, s.handleSubscribe},
		{"DELETE /api/push/subscriptions", authed, s.handleUnsubscribe},

		{"GET /api/admin/audit", admin, s.handleListAudit},
		{"GET /api/admin/audit/{id}", admin, s.handleGetAudit},
		{"GET /api/admin/health", admin, s.handleAdminHealth},
		{"GET /api/admin/report.xlsx", admin, s.handleReport},
		{"GET /api/admin/perf", admin, s.handlePerf},

		{"GET /healthz", public, s.handleHealthz},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, rt.guard(rt.handler))
	}

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		middleware.RespondError(w, http.StatusNotFound, "not found", "no such endpoint")
	})
	if s.deps.StaticDir != "" {
		mux.Handle("/", spaHandler(s.deps.StaticDir))
	}
}

// spaHandler serves files from dir and falls back to index.html so client
// side routes survive a reload.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := filepath.Clean("/" + r.URL.Path)
		if clean != "/" {
			info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
			if err != nil || info.IsDir() {
				if strings.Contains(filepath.Base(clean), ".") {
					http.NotFound(w, r)
					return
				}
				http.ServeFile(w, r, filepath.Join(dir, "index.html"))
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

// principal returns the authenticated caller. Routes that reach a handler
// calling it are guarded by RequireAuth or RequireRole.
func principal(r *http.Request) middleware.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

// actor describes the caller for audit entries.
func actor(r *http.Request) orchestrators.Actor {
	p := principal(r)
	return orchestrators.Actor{
		ID:        p.MemberID,
		Email:     p.Email,
		Role:      p.Role,
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
