package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/model"
	"github.com/terralens/landcover-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Pipeline, env.Store),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// analyzer runs one analysis. Satisfied by pipeline.Pipeline; faked in
// handler tests.
type analyzer interface {
	Run(ctx context.Context, req model.AOIRequest) (*model.AnalysisResult, error)
}

// buildRouter wires the API routes. A nil store disables the run history
// endpoints with 503 responses rather than panics.
func buildRouter(p analyzer, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/aoi/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req model.AOIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, model.KindValidation, "invalid request body")
			return
		}

		result, err := p.Run(r.Context(), req)
		if err != nil {
			kind := model.KindOf(err)
			zap.L().Warn("analysis request failed",
				zap.String("aoi", req.Name),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			writeError(w, kindStatus(kind), kind, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "", "run history disabled")
			return
		}
		filter := store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Name:   r.URL.Query().Get("name"),
		}
		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, model.KindInternal, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "", "run history disabled")
			return
		}
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "", "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

// kindStatus maps a failure kind to its HTTP status.
func kindStatus(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindDataUnavailable:
		return http.StatusNotFound
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind model.Kind, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"kind":  string(kind),
	})
}
