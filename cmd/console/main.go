package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"roadguard/internal/api"
	"roadguard/internal/auth"
	"roadguard/internal/config"
	"roadguard/internal/dashboard"
	"roadguard/internal/db"
	"roadguard/internal/events"
	"roadguard/internal/handlers"
	"roadguard/internal/live"
	"roadguard/internal/middleware"
	"roadguard/internal/models"
	"roadguard/internal/notify"
	"roadguard/internal/session"
	"roadguard/internal/web"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	cleanupInterval = 15 * time.Minute
	historyDays     = 30
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Path to a YAML config file")
	port := pflag.StringP("port", "p", "", "Listen port (overrides PORT)")
	showVersion := pflag.BoolP("version", "v", false, "Show version")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("roadguard-console %s\n", version)
		os.Exit(0)
	}

	log.SetFlags(log.Ltime | log.Ldate)
	log.Printf("🚦 RoadGuard console %s starting...", version)
	handlers.Version = version

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if cfg.SessionSecret == "" {
		log.Println("⚠️  SESSION_SECRET not set, API tokens are stored unencrypted")
	}

	if err := db.Init(cfg.DBPath); err != nil {
		log.Fatalf("❌ Database: %v", err)
	}
	defer db.Close()
	log.Printf("✓ Database: %s", cfg.DBPath)

	sealer, err := session.NewSealer(cfg.SessionSecret)
	if err != nil {
		log.Fatalf("❌ Session key: %v", err)
	}
	manager := &auth.Manager{
		DB:            db.DB,
		Sealer:        sealer,
		TTL:           cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	}
	client := api.New(cfg.APIURL, nil)
	log.Printf("✓ API: %s", cfg.APIURL)

	bus := events.NewBus()
	recorder := events.NewRecorder(200)
	recorder.Attach(bus)

	// Accident notifications
	urls, err := notify.ResolveURLs(cfg.NotifyURLs, cfg.NotifyTargets)
	if err != nil {
		log.Fatalf("❌ Notifications: %v", err)
	}
	dispatcher := notify.NewDispatcher(db.DB, bus, notify.ShoutrrrSender{}, urls)
	dispatcher.Start()
	watcher := notify.NewAlertWatcher(bus, cfg.Location())
	observe := func(alerts []models.Alert) { watcher.Observe(alerts) }

	renderer, err := web.NewRenderer(cfg.Location())
	if err != nil {
		log.Fatalf("❌ Templates: %v", err)
	}

	mounts := dashboard.NewMounts()
	console := &handlers.Console{
		API:           client,
		Manager:       manager,
		Mounts:        mounts,
		Bus:           bus,
		Recorder:      recorder,
		Tokens:        auth.NewActionTokenService(db.DB),
		Renderer:      renderer,
		Location:      cfg.Location(),
		Notify:        dispatcher,
		ObserveAlerts: observe,
	}

	hub := live.NewHub(mounts, bus, recorder)
	hub.Interval = cfg.PollInterval
	hub.ActivitySize = handlers.ActivitySize

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, time.Minute)
	defer limiter.Stop()

	mux := http.NewServeMux()
	handlers.RegisterAuthRoutes(mux, console, &auth.Handlers{Manager: manager, API: client, Bus: bus}, limiter)
	handlers.RegisterPageRoutes(mux, console)
	handlers.RegisterAPIRoutes(mux, console)
	handlers.RegisterLiveRoutes(mux, console, hub)

	var handler http.Handler = mux
	handler = manager.LoadSession(handler)
	handler = middleware.CORS(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, console.Tokens)

	go func() {
		log.Printf("🌐 Listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("⏹️  Shutting down...")

	if n := hub.ActiveConnections(); n > 0 {
		log.Printf("[WS] Closing %d live connections", n)
	}
	hub.CloseAll()
	mounts.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Shutdown: %v", err)
	}
	dispatcher.Stop()
	log.Println("👋 Console stopped")
}

// cleanupLoop drops expired sessions, stale confirm tokens and old
// notification history
func cleanupLoop(ctx context.Context, tokens *auth.ActionTokenService) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := session.CleanupExpired(db.DB); err != nil {
				log.Printf("⚠️  Session cleanup failed: %v", err)
			} else if n > 0 {
				log.Printf("🧹 Removed %d expired sessions", n)
			}
			tokens.CleanupExpired()
			if _, err := notify.PruneHistory(db.DB, historyDays); err != nil {
				log.Printf("⚠️  Notification history prune failed: %v", err)
			}
		}
	}
}
