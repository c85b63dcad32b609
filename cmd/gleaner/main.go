// CLAUDE:SUMMARY Entry point for the gleaner HTTP service — chi router, Basic Auth, optional MCP stdio.
package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/gleaner/driver"
	"github.com/hazyhaar/gleaner/judge"
	"github.com/hazyhaar/gleaner/knowledge"
	"github.com/hazyhaar/gleaner/resolve"
	"github.com/hazyhaar/gleaner/shield"
	"github.com/hazyhaar/gleaner/strategy"
	"github.com/hazyhaar/gleaner/validate"
)

func main() {
	port := env("PORT", "8086")
	knowledgePath := env("KNOWLEDGE_DB", "db/knowledge.db")
	strategyDir := env("STRATEGY_DIR", "strategies")
	mcpTransport := env("MCP_TRANSPORT", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Basic auth credentials. The password is bcrypt-hashed at startup so
	// the plaintext never sits in a long-lived comparison path.
	authUser := env("AUTH_USER", "admin")
	authPassword := os.Getenv("AUTH_PASSWORD")
	if authPassword == "" {
		slog.Error("AUTH_PASSWORD is required")
		os.Exit(1)
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(authPassword), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hash password", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Knowledge store.
	db, err := knowledge.Open(knowledgePath)
	if err != nil {
		slog.Error("knowledge db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := knowledge.NewStore(db, logger)

	// Strategy catalog.
	catalog := strategy.NewCatalog(strategyDir, logger)

	// Page driver.
	drv := driver.New(driver.Config{
		RemoteURL:      os.Getenv("CHROME_URL"),
		BlockResources: []string{"images", "fonts", "media"},
		Logger:         logger,
	})
	if err := drv.Start(ctx); err != nil {
		slog.Error("driver start", "error", err)
		os.Exit(1)
	}
	defer drv.Close()

	// Optional semantic judge.
	var validatorOpts []validate.Option
	validatorOpts = append(validatorOpts, validate.WithLogger(logger))
	semantic := false
	if judgeURL := os.Getenv("JUDGE_URL"); judgeURL != "" {
		j := judge.New(judge.Config{
			BaseURL: judgeURL,
			Model:   env("JUDGE_MODEL", "default"),
			APIKey:  os.Getenv("JUDGE_API_KEY"),
			Logger:  logger,
		})
		validatorOpts = append(validatorOpts, validate.WithJudge(j))
		semantic = true
	}

	// Engine.
	engine := resolve.NewEngine(store, catalog, drv, driver.NewFinder(drv),
		resolve.WithLogger(logger),
		resolve.WithValidator(validate.New(validatorOpts...)),
		resolve.WithConfig(resolve.Config{
			MaxFallbacks:   envInt("MAX_FALLBACKS", 3),
			AttemptTimeout: time.Duration(envInt("ATTEMPT_TIMEOUT_S", 20)) * time.Second,
			SemanticCheck:  semantic,
		}),
	)

	// Optional MCP stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "gleaner",
			Version: "1.0.0",
		}, nil)
		engine.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// Router.
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(shield.RateLimit{
		MaxRequests: envInt("RATE_LIMIT", 120),
		Window:      time.Minute,
	}) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireBasicAuth(authUser, passwordHash))

		r.Post("/api/resolve", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Target      string `json:"target"`
				Instruction string `json:"instruction"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if req.Target == "" {
				writeJSON(w, 400, map[string]string{"error": "target is required"})
				return
			}
			res, err := engine.Resolve(r.Context(), req.Target, req.Instruction)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, res)
		})

		r.Post("/api/fill-form", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Target string            `json:"target"`
				Fields map[string]string `json:"fields"`
				Submit string            `json:"submit"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if len(req.Fields) == 0 {
				writeJSON(w, 400, map[string]string{"error": "fields is required"})
				return
			}
			if req.Submit != "" {
				req.Fields["@submit"] = req.Submit
			}
			out, err := engine.FillForm(r.Context(), req.Target, req.Fields)
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, out)
		})

		r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
			sum, err := store.Statistics(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, sum)
		})

		r.Get("/api/rankings", func(w http.ResponseWriter, r *http.Request) {
			rankings, err := store.AlgorithmRankings(r.Context(),
				r.URL.Query().Get("site"), r.URL.Query().Get("task"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, rankings)
		})

		r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
			site := r.URL.Query().Get("site")
			if site == "" {
				writeJSON(w, 400, map[string]string{"error": "site is required"})
				return
			}
			history, err := store.History(r.Context(), site, queryInt(r, "limit", 20))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, history)
		})

		r.Delete("/api/knowledge", func(w http.ResponseWriter, r *http.Request) {
			site := r.URL.Query().Get("site")
			if site == "" {
				writeJSON(w, 400, map[string]string{"error": "site is required"})
				return
			}
			if err := store.Reset(r.Context(), site, r.URL.Query().Get("task")); err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "reset", "site": site})
		})

		r.Get("/api/strategies", func(w http.ResponseWriter, r *http.Request) {
			site := r.URL.Query().Get("site")
			if site == "" {
				writeJSON(w, 400, map[string]string{"error": "site is required"})
				return
			}
			defs, err := catalog.FindMatching(site, r.URL.Query().Get("task"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if defs == nil {
				defs = []*strategy.Definition{}
			}
			writeJSON(w, 200, defs)
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// --- Auth middleware ---

// requireBasicAuth checks HTTP Basic credentials against the configured
// user and bcrypt hash.
func requireBasicAuth(user string, passwordHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword(passwordHash, []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="gleaner"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
