package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/config"
	"github.com/chainid/console/internal/db"
	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/handlers"
	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/tables"
	"github.com/chainid/console/internal/ws"
)

// version is set at build time via -ldflags="-X main.version=..."
var version = "1.0.0"

func main() {
	// Healthcheck mode for the container HEALTHCHECK: hit /healthz and exit
	// without initializing the server.
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := "5001"
		if v := os.Getenv(config.EnvPrefix + "PORT"); v != "" {
			port = v
		}
		resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
		if err != nil || resp.StatusCode != 200 {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg := config.Parse()

	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		defer rotator.Close()
		logOut = rotator
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	slog.Info("starting console",
		"version", version,
		"port", cfg.Port,
		"stacksDir", cfg.StacksDir,
		"dataDir", cfg.DataDir,
		"dev", cfg.Dev,
		"pprof", cfg.Dev || cfg.Pprof,
		"logLevel", cfg.LogLevel,
		"noAuth", cfg.NoAuth,
		"pageSize", cfg.PageSize,
	)

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		slog.Error("database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	// WebSocket server
	wss := ws.NewServer()

	// HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/ws", wss)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Enable pprof endpoints in dev mode or via --pprof
	if cfg.Dev || cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprofIndex)
		mux.HandleFunc("/debug/pprof/cmdline", pprofCmdline)
		mux.HandleFunc("/debug/pprof/profile", pprofProfile)
		mux.HandleFunc("/debug/pprof/symbol", pprofSymbol)
		mux.HandleFunc("/debug/pprof/trace", pprofTrace)
		slog.Info("pprof enabled at /debug/pprof/")
	}

	// Frontend SPA handler
	var frontendFS fs.FS
	if cfg.Dev {
		distPath := "dist"
		slog.Info("dev mode: serving frontend from filesystem", "path", distPath)
		frontendFS = os.DirFS(distPath)
	} else {
		sub, err := fs.Sub(staticFiles, "dist")
		if err != nil {
			slog.Error("embed frontend", "err", err)
			os.Exit(1)
		}
		frontendFS = sub
	}
	mux.Handle("/", gzipMiddleware(spaHandler(frontendFS)))

	// Models
	users := models.NewUserStore(database)
	settings := models.NewSettingStore(database)
	prefs := models.NewTablePrefStore(database)
	controls := models.NewResourceControlStore(database)
	teams := models.NewTeamStore(database)

	// JWT secret (auto-generated on first run)
	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		slog.Error("jwt secret", "err", err)
		os.Exit(1)
	}

	userCount, err := users.Count()
	if err != nil {
		slog.Error("user count", "err", err)
		os.Exit(1)
	}

	// Dev mode: auto-seed admin user
	if cfg.Dev && userCount == 0 {
		if _, err := users.Create("admin", "testpass123", models.RoleAdministrator); err != nil {
			slog.Error("dev seed", "err", err)
		} else {
			slog.Info("dev mode: seeded admin user")
			userCount = 1
		}
	}

	var dockerClient docker.Client
	if cfg.Fixture != "" {
		slog.Info("serving docker tables from fixture", "path", cfg.Fixture)
		dockerClient, err = docker.LoadFixture(cfg.Fixture)
	} else {
		dockerClient, err = docker.NewClient(cfg.DockerHost)
	}
	if err != nil {
		slog.Error("docker client", "err", err)
		os.Exit(1)
	}
	defer dockerClient.Close()

	cache := compose.NewCache()
	cache.PopulateFromDisk(cfg.StacksDir)

	hub := tables.NewHub(tables.Sources{
		Docker:    dockerClient,
		Compose:   cache,
		StacksDir: cfg.StacksDir,
		Users:     users,
		Teams:     teams,
		Controls:  controls,
	})

	app := &handlers.App{
		Users:           users,
		Settings:        settings,
		TablePrefs:      prefs,
		Controls:        controls,
		Teams:           teams,
		WS:              wss,
		Docker:          dockerClient,
		Compose:         cache,
		Hub:             hub,
		NoAuth:          cfg.NoAuth,
		JWTSecret:       jwtSecret,
		Version:         version,
		StacksDir:       cfg.StacksDir,
		DefaultPageSize: cfg.PageSize,
		RefreshDebounce: cfg.RefreshDebounce,
	}
	app.SetNeedSetup(userCount == 0)
	handlers.Register(app)

	if cfg.NoAuth {
		slog.Warn("authentication disabled (--no-auth)")
	}

	// Start background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := compose.StartWatcher(ctx, cfg.StacksDir, cache, cfg.RefreshDebounce, app.ComposeChanged); err != nil {
		slog.Warn("compose file watcher failed to start", "err", err)
	}
	app.StartRefreshWatcher(ctx)

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}

// spaHandler serves static files from fsys. Paths that don't name a file
// get index.html so the frontend router can resolve them.
func spaHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if !fs.ValidPath(name) || !fileExists(fsys, name) {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	})
}

func fileExists(fsys fs.FS, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// net/http/pprof registers on DefaultServeMux; the console uses its own mux.
var (
	pprofIndex   = netpprof.Index
	pprofCmdline = netpprof.Cmdline
	pprofProfile = netpprof.Profile
	pprofSymbol  = netpprof.Symbol
	pprofTrace   = netpprof.Trace
)

// gzipPool reuses gzip.Writer instances (~256KB internal state each).
var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

// gzipMiddleware compresses responses on the fly for clients that accept it.
func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		// Skip compression for small/binary responses
		switch filepath.Ext(r.URL.Path) {
		case ".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".woff2", ".br", ".gz":
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			gz.Close()
			gzipPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		next.ServeHTTP(&gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

// WriteHeader drops the Content-Length the file server computed for the
// uncompressed body.
func (w *gzipResponseWriter) WriteHeader(code int) {
	w.ResponseWriter.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}
