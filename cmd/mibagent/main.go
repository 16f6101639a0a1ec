package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mibagent/internal/agent"
	"mibagent/internal/config"
	"mibagent/internal/handlers"
	"mibagent/internal/metrics"
	"mibagent/internal/middleware"
	"mibagent/internal/mib"
	"mibagent/internal/monitor"
	"mibagent/internal/notify"
	"mibagent/internal/persistence"
	"mibagent/internal/snmp"
	"mibagent/internal/utils"
	"mibagent/internal/version"

	"github.com/gin-gonic/gin"
)

// App holds the long-lived components of a running agent.
type App struct {
	cfg         *config.Config
	log         *utils.Logger
	paths       *utils.Paths
	store       *mib.Store
	files       *persistence.FileStore
	dispatcher  *agent.Dispatcher
	metrics     *metrics.Metrics
	feed        *notify.Feed
	notifier    *notify.Dispatcher
	monitor     *monitor.Monitor
	engine      *snmp.Engine
	authService *middleware.AuthService
	wsHub       *middleware.Hub
	rateLimiter *middleware.RateLimiter
	snmpLimiter *middleware.RateLimiter
}

func main() {
	configPath := flag.String("config", config.DefaultFile, "path to the agent configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, created, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if created {
		log.Printf("Wrote default configuration to %s", cfg.Path())
	}

	root := rootPath(cfg)
	paths := utils.NewPaths(root)
	logger := utils.NewLogger(paths.LogFile())
	defer logger.Close()
	paths.DeployRoot(logger)
	logger.Writef("mibagent %s starting (root %s)", version.String(), root)

	sampler := monitor.NewCPUSampler()
	if err := sampler.Prime(context.Background()); err != nil {
		logger.Writef("Initial CPU sample failed: %v", err)
	}

	app, err := newApp(cfg, paths, logger, sampler)
	if err != nil {
		logger.Writef("Startup failed: %v", err)
		log.Fatalf("Startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx); err != nil {
		logger.Writef("Agent stopped with error: %v", err)
		log.Fatalf("Agent stopped with error: %v", err)
	}
	logger.Write("Agent exited")
}

// rootPath picks the data directory: the configured root, else the
// directory holding the config file.
func rootPath(cfg *config.Config) string {
	if root := strings.TrimSpace(cfg.RootPath); root != "" {
		return root
	}
	dir := filepath.Dir(cfg.Path())
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func newApp(cfg *config.Config, paths *utils.Paths, logger *utils.Logger, sampler monitor.Sampler) (*App, error) {
	statePath, err := paths.StateFile(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("state file: %w", err)
	}

	app := &App{
		cfg:         cfg,
		log:         logger,
		paths:       paths,
		metrics:     metrics.New(),
		files:       persistence.NewFileStore(statePath, logger),
		wsHub:       middleware.NewHub(logger),
		rateLimiter: middleware.NewRateLimiter(cfg.Limit(), cfg.RateBurst),
		snmpLimiter: middleware.NewRateLimiter(cfg.Limit(), cfg.RateBurst),
	}
	app.store = app.files.Load()
	app.dispatcher = agent.NewDispatcher(app.store, app.files, logger)
	app.feed = notify.NewFeed(app.wsHub)

	sinks := []notify.Sink{
		notify.NewTrapSink(cfg.TrapHost, uint16(cfg.TrapPort), cfg.TrapCommunity, cfg.EventOIDValue()),
		app.feed,
	}
	if cfg.SMTP.Enabled {
		sinks = append(sinks, notify.NewMailSink(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}
	if strings.TrimSpace(cfg.DiscordWebhook) != "" {
		sinks = append(sinks, notify.NewDiscordSink(cfg.DiscordWebhook))
	}
	app.notifier = notify.NewDispatcher(logger, app.metrics, sinks...)

	app.monitor = monitor.New(app.store, sampler, app.files, app.notifier, logger, app.metrics)
	app.monitor.Interval = cfg.MonitorInterval()

	app.engine = snmp.NewEngine(app.dispatcher, snmp.Options{
		Communities: cfg.Communities(),
		Limiter:     app.snmpLimiter,
		Metrics:     app.metrics,
		Logger:      logger,
	})

	app.authService = middleware.NewAuthService(cfg.JWTSecret,
		middleware.Account{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash, Class: agent.ReadWrite},
		middleware.Account{Username: cfg.Viewer.Username, PasswordHash: cfg.Viewer.PasswordHash, Class: agent.ReadOnly},
	)
	if cfg.Admin.PasswordHash == "" {
		logger.Write("No admin password hash configured; HTTP writes are unavailable until one is set (see tools/password_tool)")
	}
	logger.Writef("Notification sinks: %s", strings.Join(app.notifier.Sinks(), ", "))
	return app, nil
}

func setupRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if app.cfg.VerboseHTTP {
		r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC1123),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		}))
	}
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(app.rateLimiter.Middleware())

	systemHandlers := handlers.NewSystemHandlers(app.store)
	authHandlers := handlers.NewAuthHandlers(app.authService, app.log)
	objectHandlers := handlers.NewObjectHandlers(app.dispatcher, app.metrics, app.log)
	eventHandlers := handlers.NewEventHandlers(app.feed)

	r.GET("/healthz", systemHandlers.Healthz)
	r.GET("/version", systemHandlers.Version)
	r.GET("/metrics", gin.WrapH(app.metrics.Handler()))
	r.POST("/api/login", authHandlers.APILogin)

	api := r.Group("/api")
	api.Use(app.authService.RequireAPIAuth())
	{
		api.GET("/objects", objectHandlers.APIWalk)
		api.PUT("/objects", objectHandlers.APIWrite)
		api.GET("/objects/:oid", objectHandlers.APIGet)
		api.GET("/objects/:oid/next", objectHandlers.APINext)
		api.GET("/events", eventHandlers.APIEvents)
	}

	r.GET("/ws", app.authService.RequireAPIAuth(), app.wsHub.HandleWebSocket())
	return r
}

// Run starts every component and blocks until ctx is cancelled or the SNMP
// listener fails, then shuts down in reverse order.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.wsHub.Run(ctx)
	a.monitor.Start()

	if a.cfg.AutoPortForward {
		pm := utils.NewPortMapper("udp", a.cfg.ListenPort(), "mibagent SNMP", a.log)
		go pm.Run(ctx)
	}

	var srv *http.Server
	if a.cfg.HTTPPort > 0 {
		srv = &http.Server{
			Addr:           ":" + strconv.Itoa(a.cfg.HTTPPort),
			Handler:        setupRouter(a),
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxHeaderBytes: 1 << 20,
		}
		go func() {
			a.log.Writef("Starting HTTP API on port %d", a.cfg.HTTPPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Writef("HTTP API failed: %v", err)
			}
		}()
	}

	engineErr := make(chan error, 1)
	go func() { engineErr <- a.engine.ListenAndServe(ctx, a.cfg.ListenAddress) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-engineErr
	case runErr = <-engineErr:
		cancel()
	}
	a.log.Write("Shutting down...")

	a.monitor.Stop()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Writef("HTTP API forced to shutdown: %v", err)
		}
		done()
	}
	a.rateLimiter.Stop()
	a.snmpLimiter.Stop()
	a.files.SaveLogged(a.store)
	return runErr
}
