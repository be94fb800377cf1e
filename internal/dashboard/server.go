// Package dashboard serves the REST API behind the web dashboard.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"guildwarden/internal/analytics"
	"guildwarden/internal/kv"
	"guildwarden/internal/scheduler"
	"guildwarden/internal/storage"
)

type ConfigService interface {
	GetSection(ctx context.Context, guildID, section string) (map[string]any, error)
	UpdateSection(ctx context.Context, guildID, section string, partial map[string]any) (map[string]any, error)
}

type ScheduleService interface {
	List(ctx context.Context, guildID string) ([]storage.ScheduledMessage, error)
	Create(ctx context.Context, req scheduler.CreateRequest) (int64, error)
	Delete(ctx context.Context, guildID string, id int64) (bool, error)
}

type StatsService interface {
	Report(ctx context.Context, guildID string, since time.Time) (analytics.Report, error)
}

type Options struct {
	Addr          string
	BaseURL       string
	ClientID      string
	ClientSecret  string
	SessionTTL    time.Duration
	SecureCookies bool
	// RequestsPerMinute caps API calls per client address.
	RequestsPerMinute int

	APIBase  string
	AuthURL  string
	TokenURL string
}

type Server struct {
	configs   ConfigService
	schedules ScheduleService
	stats     StatsService
	kv        kv.Store
	sessions  *Sessions
	oauth     *oauth2.Config
	opts      Options
	logger    *zap.Logger
	router    *bunrouter.Router
}

func NewServer(configs ConfigService, schedules ScheduleService, stats StatsService, store kv.Store, opts Options, logger *zap.Logger) *Server {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.APIBase == "" {
		opts.APIBase = discordAPIBase
	}
	if opts.AuthURL == "" {
		opts.AuthURL = discordAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = discordTokenURL
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 120
	}
	if strings.HasPrefix(opts.BaseURL, "https://") {
		opts.SecureCookies = true
	}

	s := &Server{
		configs:   configs,
		schedules: schedules,
		stats:     stats,
		kv:        store,
		sessions:  NewSessions(store, opts.SessionTTL),
		oauth:     newOAuthConfig(opts),
		opts:      opts,
		logger:    logger.Named("dashboard"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *bunrouter.Router {
	router := bunrouter.New(
		bunrouter.Use(s.recoverMiddleware, s.logMiddleware),
	)

	router.GET("/health", func(w http.ResponseWriter, req bunrouter.Request) error {
		_, err := w.Write([]byte("ok"))
		return err
	})

	router.WithGroup("/auth", func(g *bunrouter.Group) {
		g.GET("/login", s.login)
		g.GET("/callback", s.callback)
		g.POST("/logout", s.logout)
	})

	router.Use(s.rateLimitMiddleware, s.sessionMiddleware).WithGroup("/api", func(g *bunrouter.Group) {
		g.GET("/me", s.me)
		g.Use(s.guildMiddleware).WithGroup("/guilds/:id", func(g *bunrouter.Group) {
			g.GET("/config/:section", s.getConfigSection)
			g.PATCH("/config/:section", s.patchConfigSection)
			g.GET("/scheduled", s.listScheduled)
			g.POST("/scheduled", s.createScheduled)
			g.DELETE("/scheduled/:msgId", s.deleteScheduled)
			g.GET("/modstats", s.modStats)
		})
	})
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
