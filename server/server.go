package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/books"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/config"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/errors"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/flags"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/glossary"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/internal/httpclient"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/maparse"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/spline"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/version"
	"github.com/brendadeeznuts1111/wncaab-perf-v3.1-sub000/workers"
)

// TESServer owns every subsystem of the dev console: router, worker pool,
// WebSocket fan-out, warmup gate, metrics, caches and collaborator shims.
// Tests construct fresh instances; there is no ambient singleton.
type TESServer struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	clock  Clock

	router  *Router
	static  *StaticManifest
	metrics *Metrics

	eventLoop *EventLoopMonitor
	warmup    WarmupState
	csrf      *CSRFStore

	// Named rate limiter instances
	dashboardLimiter *RateLimiter
	splineLimiter    *RateLimiter
	snapshotLimiter  *RateLimiter

	// TTL caches
	gaugeCache   *SimpleCache
	aiCache      *SimpleCache
	tensionCache *SimpleCache

	// Collaborator engines
	splineEngine *spline.Engine
	presets      *spline.PresetStore
	modelCache   *maparse.ModelCache
	glossaryReg  *glossary.Registry
	flagsReg     *flags.Registry
	booksReg     *books.Registry

	// Worker pool + registry resolution
	pool      *workers.Pool
	sharedMap *workers.SharedMap
	resolver  *workers.RegistryResolver

	// Version registry; nil when the registry file is absent (capability
	// flag: the versions endpoints answer 503, not crash)
	versionReg     *version.Registry
	registryWatch  *version.RegistryWatcher

	// WebSocket fan-out state
	wsMu          sync.Mutex
	wsClients     map[*Client]bool
	splineClients map[*Client]bool
	topicCounts   map[Topic]int
	splineLoopOn  bool
	splineFrame   atomic.Int64

	// Sampled ping/pong logging (~1 per second under load)
	pingLog rate.Sometimes

	httpServer *http.Server
	probe      *httpclient.ProbeClient

	allowOrigin string
	apiVersion  string
	isDev       bool

	dashboardHTML []byte
	startedAt     time.Time

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	state        atomic.Int32
	boundPortVal atomic.Int64
	shutdown     []func(context.Context) error // LIFO stack
	shutMu       sync.Mutex
}

// Options carries optional dependency injections. Zero values select
// production defaults.
type Options struct {
	Clock               Clock
	Launcher            workers.Launcher
	VersionRegistryPath string
	PresetDir           string
	DashboardHTML       []byte
	StaticEntries       []StaticEntry
}

// NewTESServer wires all subsystems. The pool is created but not spawned;
// Start runs InitializeWorkerPool and warmup.
func NewTESServer(cfg *config.Config, log *zap.SugaredLogger, opts Options) (*TESServer, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = &workers.ExecLauncher{}
	}
	presetDir := opts.PresetDir
	if presetDir == "" {
		presetDir = "presets"
	}

	presets, err := spline.NewPresetStore(presetDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create preset store")
	}

	ctx, cancel := context.WithCancel(context.Background())

	probeTimeout := time.Duration(cfg.Workers.APICheckTimeoutMS) * time.Millisecond
	if probeTimeout <= 0 {
		probeTimeout = 750 * time.Millisecond
	}

	s := &TESServer{
		cfg:    cfg,
		logger: log,
		clock:  clock,

		router:  NewRouter(),
		metrics: NewMetrics(),

		eventLoop: NewEventLoopMonitor(),
		csrf:      NewCSRFStore(clock),

		dashboardLimiter: NewRateLimiter("dashboard", 60, time.Minute, clock),
		splineLimiter:    NewRateLimiter("spline-render", 100, time.Minute, clock),
		snapshotLimiter:  NewRateLimiter("worker-snapshot", 1, 10*time.Second, clock),

		gaugeCache:   NewSimpleCache(clock),
		aiCache:      NewSimpleCache(clock),
		tensionCache: NewSimpleCache(clock),

		splineEngine: spline.NewEngine(),
		presets:      presets,
		modelCache:   maparse.NewModelCache(nil),
		glossaryReg:  glossary.NewRegistry(),
		flagsReg:     flags.NewRegistry(nil),
		booksReg:     books.NewRegistry(),

		sharedMap: workers.NewSharedMap(),
		probe:     httpclient.NewProbeClient(probeTimeout),

		wsClients:     make(map[*Client]bool),
		splineClients: make(map[*Client]bool),
		topicCounts:   make(map[Topic]int),

		pingLog: rate.Sometimes{Interval: time.Second},

		allowOrigin: "*",
		apiVersion:  version.Get().Version,
		isDev:       !cfg.IsProduction(),

		dashboardHTML: opts.DashboardHTML,
		startedAt:     clock.Now(),

		ctx:    ctx,
		cancel: cancel,
	}
	if s.dashboardHTML == nil {
		s.dashboardHTML = defaultDashboardHTML
	}

	s.pool = workers.NewPool(launcher, log.Named("workers"), clock.Now)
	s.resolver = workers.NewRegistryResolver(s.sharedMap, s.pool, s.probe, cfg.Workers.APIPort, log.Named("registry"))

	if opts.VersionRegistryPath != "" {
		reg, err := version.LoadRegistry(opts.VersionRegistryPath)
		if err != nil {
			log.Warnw("Version registry unavailable; versions endpoints will 503",
				"path", opts.VersionRegistryPath,
				"error", err,
			)
		} else {
			s.versionReg = reg
			watch, err := version.NewRegistryWatcher(reg, log.Named("versions"))
			if err != nil {
				log.Warnw("Version registry watcher unavailable", "error", err)
			} else {
				s.registryWatch = watch
			}
		}
	}

	static, err := NewStaticManifest(opts.StaticEntries)
	if err != nil {
		cancel()
		return nil, err
	}
	s.static = static

	s.state.Store(int32(ServerStateRunning))
	s.registerRoutes()
	return s, nil
}

// InitializeWorkerPool spawns the initial cohort and activates the event-loop
// monitor.
func (s *TESServer) InitializeWorkerPool() error {
	if err := s.pool.Initialize(s.cfg.Workers.PoolSize); err != nil {
		return errors.Wrap(err, "worker pool initialization failed")
	}
	s.metrics.SetWorkerPoolSize(s.pool.Size())
	s.resolver.Publish()
	s.eventLoop.Start(s.ctx)
	return nil
}

// ServeHTTP is the dispatcher: tracks metrics, applies OPTIONS/405 handling,
// matches routes in precedence order, and converts panics to 500s with CORS
// preserved.
func (s *TESServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()
	s.metrics.TrackRequestStart()
	defer s.metrics.TrackRequestEnd()

	if s.cfg.Server.LogRequests {
		s.logger.Debugw("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		)
	}

	defer func() {
		if rec := recover(); rec != nil {
			// 500s always carry CORS
			s.renderError(w, r, start, errors.Newf("panic: %v", rec), string(debug.Stack()))
		}
	}()

	route, params := s.router.Match(r.URL.Path)
	if route == nil {
		s.renderNotFound(w, r, start)
		return
	}

	// OPTIONS preflight never reaches handlers
	if r.Method == http.MethodOptions && !route.WS {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.allowOrigin)
		h.Set("Access-Control-Allow-Methods", methodList(route.Methods))
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+headerDevToken+", "+headerCSRF)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !route.Methods[r.Method] && !(route.WS && r.Method == http.MethodGet) {
		s.writeError(w, http.StatusMethodNotAllowed, start, fmt.Sprintf("method %s not allowed", r.Method))
		return
	}

	route.Handler(w, r, params)
}

func methodList(methods map[string]bool) string {
	out := make([]string, 0, len(methods)+1)
	for m := range methods {
		out = append(out, m)
	}
	out = append(out, http.MethodOptions)
	// Stable enough for headers; order is not contractual
	return strings.Join(out, ", ")
}

// clientIP extracts the rate-limit key for a request.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}

// PushShutdown registers a teardown function; Stop runs the stack in LIFO
// order under a bounded deadline.
func (s *TESServer) PushShutdown(fn func(context.Context) error) {
	s.shutMu.Lock()
	defer s.shutMu.Unlock()
	s.shutdown = append(s.shutdown, fn)
}

// Warmup exposes the gate for tests.
func (s *TESServer) Warmup() *WarmupState { return &s.warmup }

// Metrics exposes the counter store.
func (s *TESServer) Metrics() *Metrics { return s.metrics }

// Pool exposes the worker pool.
func (s *TESServer) Pool() *workers.Pool { return s.pool }
