package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"medrag/features/ask"
	"medrag/features/mcp"
	"medrag/features/stats"
	"medrag/internal/config"
	"medrag/internal/domain"
	"medrag/internal/middleware"
	"medrag/internal/pipeline"
)

// Pipeline is the part of *pipeline.Pipeline the HTTP surface uses.
type Pipeline interface {
	Answer(ctx context.Context, question string, topK int) (*domain.AnswerRecord, error)
	Search(ctx context.Context, question string, topK int) ([]domain.Passage, error)
	BuildIndex(ctx context.Context, docs []domain.Document) (*pipeline.BuildStats, error)
	Stats(ctx context.Context) (*pipeline.IndexStats, error)
}

type App struct {
	Handler http.Handler
	port    int
}

// New wires the HTTP routes. requester may be nil; POST /index then builds
// in-process.
func New(cfg *config.Config, p Pipeline, l ask.DocumentLoader, requester ask.RebuildRequester) *App {
	askHandler := ask.NewHandler(p, l, p, requester, cfg.CorpusDir)
	statsHandler := stats.NewHandler(p)
	mcpHandler := mcp.NewHandler(p)

	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.CORS(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /ask", route(askHandler.Ask))
	mux.Handle("POST /index", route(askHandler.Index))
	mux.Handle("GET /stats", route(statsHandler.GetStats))
	mux.Handle("OPTIONS /", route(func(w http.ResponseWriter, r *http.Request) {}))

	mux.Handle("POST /mcp", route(mcpHandler.ServeHTTP))
	mux.Handle("GET /mcp/sse", route(mcpHandler.HandleSSE))
	mux.Handle("POST /mcp/messages", route(mcpHandler.HandleMessage))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{Handler: mux, port: cfg.ServerPort}
}

// FromDependencies builds the App from bootstrapped dependencies, routing
// POST /index through NSQ when messaging is enabled.
func FromDependencies(d *Dependencies) *App {
	var requester ask.RebuildRequester
	if d.Notifier != nil {
		requester = d.Notifier
	}
	return New(d.Config, d.Pipeline, d.Loader, requester)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
