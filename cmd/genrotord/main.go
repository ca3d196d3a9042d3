package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	genrotor "github.com/halcyon-ai/genrotor"
	"github.com/halcyon-ai/genrotor/internal/logging"
	"github.com/halcyon-ai/genrotor/internal/version"
	"github.com/halcyon-ai/genrotor/transport"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	// Load and validate config from GENROTOR_CONFIG, or fall back to
	// environment variable discovery.
	var cfg genrotor.Config
	if cfgPath := os.Getenv("GENROTOR_CONFIG"); cfgPath != "" {
		loaded, err := genrotor.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
		log.Printf("Config loaded: provider=%s, credentials=%d, models=%d",
			cfg.Provider, len(cfg.Credentials), len(cfg.Models))
	} else {
		cfg = genrotor.ConfigFromEnv()
		log.Printf("No GENROTOR_CONFIG set; discovered %d credential(s) from environment", len(cfg.Credentials))
	}
	if err := genrotor.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	rotor, err := genrotor.New(cfg, genrotor.WithLogger(logging.Logger))
	if err != nil {
		log.Fatalf("Failed to create rotator: %v", err)
	}
	defer func() { _ = rotor.Close() }()

	r := newRouter(rotor)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("genrotord %s listening on %s (%d client(s), %d model(s))",
		version.Short(), addr, rotor.Clients(), len(rotor.Models()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// generateRequest is the POST /v1/generate body. Contents accepts either a
// plain prompt string or a structured array of turns.
type generateRequest struct {
	Contents json.RawMessage             `json:"contents"`
	Config   *transport.GenerationConfig `json:"config,omitempty"`
}

// newRouter builds the HTTP router.
func newRouter(rotor *genrotor.Rotator) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   rotor.Models(),
		})
	})

	r.Post("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.Contents) == 0 {
			writeError(w, http.StatusBadRequest, "contents is required")
			return
		}

		contents := decodeContents(req.Contents)
		resp, err := rotor.Generate(r.Context(), contents, req.Config)
		if err != nil {
			var exhausted *genrotor.ExhaustedError
			if errors.As(err, &exhausted) {
				writeError(w, http.StatusServiceUnavailable, exhausted.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

// decodeContents unwraps a JSON string prompt; anything else is passed to
// the rotator as raw JSON for structured decoding.
func decodeContents(raw json.RawMessage) any {
	var prompt string
	if err := json.Unmarshal(raw, &prompt); err == nil {
		return prompt
	}
	return raw
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
		},
	})
}
