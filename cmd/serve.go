package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oakmont-research/signal-cli/internal/config"
	"github.com/oakmont-research/signal-cli/internal/ledger"
	"github.com/oakmont-research/signal-cli/internal/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve snapshots and run history over HTTP",
	Long: `Runs a read-only JSON API over the history logs and run ledger.
The server performs no ingestion; histories keep their single writer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("component", "serve"))

		led, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return eris.Wrap(err, "serve: open ledger")
		}
		defer led.Close()

		srv := &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Server.Port),
			Handler:           newRouter(cfg, led),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("listening", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "serve: shutdown")
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the read-only API over the history logs and ledger.
func newRouter(c *config.Config, led ledger.Ledger) http.Handler {
	reg := source.NewRegistry(c)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/snapshots", func(w http.ResponseWriter, req *http.Request) {
		snaps, err := buildSnapshots(c, reg, nil, time.Now().UTC())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snaps)
	})

	r.Get("/api/snapshots/{source}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "source")
		if _, err := reg.Get(name); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown source %q", name)})
			return
		}
		snaps, err := buildSnapshots(c, reg, []string{name}, time.Now().UTC())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snaps[0])
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if s := req.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := led.List(req.Context(), ledger.Filter{
			Source: req.URL.Query().Get("source"),
			Status: ledger.RunStatus(req.URL.Query().Get("status")),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if entries == nil {
			entries = []ledger.Run{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
