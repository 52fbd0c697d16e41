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
	"golang.org/x/time/rate"

	"github.com/sells-group/fitk/internal/estimate"
	"github.com/sells-group/fitk/internal/model"
	"github.com/sells-group/fitk/internal/report"
	"github.com/sells-group/fitk/internal/store"
	"github.com/sells-group/fitk/internal/trialio"
)

// maxTrialBody caps the size of a posted trial table.
const maxTrialBody = 8 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API over the fit store and estimator",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limiter := rate.NewLimiter(rate.Limit(cfg.Server.FitRatePerMin/60), max(cfg.Server.FitBurst, 1))
		api := &fitAPI{
			store:     st,
			fitter:    estimate.NewFitter(fitSettings(cfg.Fit)),
			limiter:   limiter,
			paramsDir: cfg.Data.ParamsDir,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(api, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
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

// fitAPI serves recorded fits and runs new ones.
type fitAPI struct {
	store     store.Store
	fitter    *estimate.Fitter
	limiter   *rate.Limiter
	paramsDir string // empty skips writing params records
}

func buildRouter(api *fitAPI, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/fits", func(r chi.Router) {
		r.Get("/", api.listFits)
		r.Get("/{subject}", api.latestFit)
		r.Get("/{subject}/params", api.latestParams)
		r.Post("/{subject}", api.createFit)
	})

	return r
}

func (a *fitAPI) listFits(w http.ResponseWriter, r *http.Request) {
	filter := store.FitFilter{}
	if s := r.URL.Query().Get("subject"); s != "" {
		filter.Subject = model.SubjectKey(s)
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	fits, err := a.store.ListFits(r.Context(), filter)
	if err != nil {
		a.internalError(w, "list fits", err)
		return
	}
	if fits == nil {
		fits = []model.FitResult{}
	}
	writeJSON(w, http.StatusOK, fits)
}

func (a *fitAPI) latestFit(w http.ResponseWriter, r *http.Request) {
	fit, ok := a.lookupLatest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, fit)
}

func (a *fitAPI) latestParams(w http.ResponseWriter, r *http.Request) {
	fit, ok := a.lookupLatest(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = report.Write(w, fit.Record())
}

func (a *fitAPI) lookupLatest(w http.ResponseWriter, r *http.Request) (*model.FitResult, bool) {
	subject := model.SubjectKey(chi.URLParam(r, "subject"))
	fit, err := a.store.GetLatestFit(r.Context(), subject)
	if eris.Is(err, store.ErrFitNotFound) {
		writeError(w, http.StatusNotFound, "no fit for subject "+subject)
		return nil, false
	}
	if err != nil {
		a.internalError(w, "get latest fit", err)
		return nil, false
	}
	return fit, true
}

func (a *fitAPI) createFit(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "fit rate limit exceeded")
		return
	}

	subject := model.SubjectKey(chi.URLParam(r, "subject"))
	body := http.MaxBytesReader(w, r.Body, maxTrialBody)
	trials, err := trialio.ReadCSV(r.Context(), body, trialio.TableLayout)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	fit, err := a.fitter.Fit(r.Context(), subject, trials)
	if eris.Is(err, estimate.ErrNoFeasibleFit) {
		writeError(w, http.StatusUnprocessableEntity, "no feasible fit for the trial set")
		return
	}
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		a.internalError(w, "fit", err)
		return
	}

	if err := a.store.SaveFit(r.Context(), fit, trials); err != nil {
		a.internalError(w, "save fit", err)
		return
	}
	if a.paramsDir != "" {
		if _, err := report.Save(a.paramsDir, fit.Record()); err != nil {
			a.internalError(w, "write params record", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, fit)
}

func (a *fitAPI) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
