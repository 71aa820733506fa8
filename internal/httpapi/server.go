package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MimeLyc/yaml-translator/internal/cache"
	"github.com/MimeLyc/yaml-translator/internal/config"
	"github.com/MimeLyc/yaml-translator/internal/jobs"
	"github.com/MimeLyc/yaml-translator/internal/langindex"
	"github.com/MimeLyc/yaml-translator/internal/notify"
	"github.com/MimeLyc/yaml-translator/internal/session"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

// deliveryTarget reports whether uploads can be sent at all.
type deliveryTarget interface {
	Configured() bool
}

type Server struct {
	session  *session.Session
	cache    *cache.Store
	queue    *jobs.Queue
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	target   deliveryTarget
	notifier *notify.Notifier
	index    *langindex.Refresher
	schedule *langindex.Scheduler
	public   PublicConfig
	registry *prometheus.Registry
	metrics  *metrics

	basePath       string
	uiEnabled      bool
	uiStaticDir    string
	streamInterval time.Duration
	now            func() time.Time

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithBasePath serves every route below p, e.g. "/translateit".
func WithBasePath(p string) Option {
	return func(s *Server) {
		s.basePath = config.NormalizeBasePath(p)
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithDeliveryTarget(t deliveryTarget) Option {
	return func(s *Server) {
		s.target = t
	}
}

func WithNotifier(n *notify.Notifier) Option {
	return func(s *Server) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLanguageIndex(r *langindex.Refresher, sched *langindex.Scheduler) Option {
	return func(s *Server) {
		s.index = r
		s.schedule = sched
	}
}

func WithPublicConfig(cfg *config.Config) Option {
	return func(s *Server) {
		if cfg != nil {
			s.public = publicConfigFrom(cfg)
		}
	}
}

// WithRegistry registers the API metrics on reg and serves it at /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

func NewServer(sess *session.Session, store *cache.Store, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		session:  sess,
		cache:    store,
		queue:    queue,
		notifier: notify.New("en"),
		public:   PublicConfig{AppName: "translateit", BasePath: "/"},
		registry: prometheus.NewRegistry(),
		basePath: "/",
		now:      time.Now,
		mux:      http.NewServeMux(),

		streamInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.public.BasePath = s.basePath
	s.metrics = newMetrics(s.registry, s.queue, s.cache)
	s.routes()
	return s
}

// Handler serves the API below the configured base path.
func (s *Server) Handler() http.Handler {
	if s.basePath == "/" {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == s.basePath:
			http.Redirect(w, r, s.basePath+"/", http.StatusMovedPermanently)
		case strings.HasPrefix(r.URL.Path, s.basePath+"/"):
			http.StripPrefix(s.basePath, s.mux).ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.handle("/api/config", s.handleConfig)
	s.handle("/api/languages", s.handleLanguages)
	s.handle("/api/languages/refresh", s.handleLanguagesRefresh)
	s.handle("/api/resume", s.handleResume)
	s.handle("/api/resume/skip", s.handleResumeSkip)
	s.handle("/api/session", s.handleSession)
	s.handle("/api/session/start", s.handleStart)
	s.handle("/api/session/save", s.handleSave)
	s.handle("/api/session/next", s.handleNext)
	s.handle("/api/session/back", s.handleBack)
	s.handle("/api/session/filter", s.handleFilter)
	s.handle("/api/session/restart", s.handleRestart)
	s.handle("/api/session/new", s.handleNew)
	s.handle("/api/session/download", s.handleDownload)
	s.handle("/api/session/yaml", s.handleYAML)
	s.handle("/api/session/send", s.handleSend)
	s.handle("/api/deliveries", s.handleDeliveries)
	s.handle("/api/deliveries/stream", s.handleDeliveryStream)
	s.handle("/api/deliveries/", s.handleDeliveryRoutes)
	s.handle("/api/cache", s.handleCache)
	s.handle("/api/cache/", s.handleCacheLanguage)
	s.handle("/api/settings", s.handleSettings)
	s.mux.Handle("/metrics", s.metrics.handler(s.registry))
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.metrics.instrument(pattern, h))
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
