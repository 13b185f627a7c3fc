// Package api serves channel profiles, pipeline definitions, stored
// records and the run history over HTTP, and lets callers trigger runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/engine"
	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
)

const (
	defaultRunsLimit    = 20
	defaultRecordsLimit = 100
)

// Handler routes the /api endpoints.
type Handler struct {
	engine *engine.Engine
	ctx    context.Context
	router chi.Router
}

// New builds the router. Runs started through the API are bound to ctx,
// so cancelling it stops them.
func New(ctx context.Context, e *engine.Engine, allowedOrigins ...string) *Handler {
	h := &Handler{engine: e, ctx: ctx}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/channels", h.listChannels)
		r.Get("/channels/{id}", h.getChannel)
		r.Get("/channels/{id}/records", h.channelRecords)
		r.Post("/channels/{id}/runs", h.startRun)
		r.Get("/pipelines", h.listPipelines)
		r.Get("/runs", h.listRuns)
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChannelSummary is one entry of GET /api/channels.
type ChannelSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Base        string `json:"base,omitempty"`
	Signals     bool   `json:"signals"`
	Pipeline    string `json:"pipeline,omitempty"`
	Running     bool   `json:"running"`
}

func (h *Handler) listChannels(w http.ResponseWriter, _ *http.Request) {
	profiles := h.engine.Channels().List()
	out := make([]ChannelSummary, 0, len(profiles))
	for _, p := range profiles {
		s := ChannelSummary{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Base:        p.Base,
			Signals:     p.Signals != nil,
			Running:     h.engine.Running(p.ID),
		}
		if def, err := h.engine.Catalog().ForChannel(p.ID); err == nil {
			s.Pipeline = def.ID
		}
		out = append(out, s)
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) getChannel(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Channels().Get(chi.URLParam(r, "id"))
	if err != nil {
		jsonErr(w, http.StatusNotFound, "channel not found")
		return
	}
	jsonResp(w, http.StatusOK, p)
}

// RecordsResponse is the body of GET /api/channels/{id}/records.
type RecordsResponse struct {
	Channel string         `json:"channel"`
	Total   int            `json:"total"`
	Records []model.Record `json:"records"`
}

func (h *Handler) channelRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.engine.Channels().Get(id); err != nil {
		jsonErr(w, http.StatusNotFound, "channel not found")
		return
	}
	limit, ok := parseLimit(w, r, defaultRecordsLimit)
	if !ok {
		return
	}
	records, err := h.engine.Store().LoadRecords(r.Context(), id)
	if err != nil {
		zap.L().Error("api: load records", zap.String("channel", id), zap.Error(err))
		jsonErr(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	resp := RecordsResponse{Channel: id, Total: len(records), Records: records}
	if len(resp.Records) > limit {
		resp.Records = resp.Records[len(resp.Records)-limit:]
	}
	if resp.Records == nil {
		resp.Records = []model.Record{}
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) listPipelines(w http.ResponseWriter, _ *http.Request) {
	defs := h.engine.Catalog().List()
	if defs == nil {
		defs = []pipeline.Definition{}
	}
	jsonResp(w, http.StatusOK, defs)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultRunsLimit)
	if !ok {
		return
	}
	reports, err := h.engine.Store().LoadReports(r.Context())
	if err != nil {
		zap.L().Error("api: load run history", zap.Error(err))
		jsonErr(w, http.StatusInternalServerError, "failed to load run history")
		return
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CompletedAt.After(reports[j].CompletedAt)
	})
	if len(reports) > limit {
		reports = reports[:limit]
	}
	if reports == nil {
		reports = []model.RunReport{}
	}
	jsonResp(w, http.StatusOK, reports)
}

// RunAccepted is the 202 body of POST /api/channels/{id}/runs.
type RunAccepted struct {
	Status  string `json:"status"`
	RunID   string `json:"runId"`
	Channel string `json:"channel"`
	Live    bool   `json:"live"`
}

// startRun launches the channel's pipeline. The run is simulated unless
// live=true; wait=true runs it inside the request and returns the result.
func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	opts := engine.Options{Live: q.Get("live") == "true"}

	if q.Get("wait") == "true" {
		res, err := h.engine.Run(r.Context(), id, opts)
		if err != nil {
			h.runErr(w, id, err)
			return
		}
		jsonResp(w, http.StatusOK, res)
		return
	}

	runID, err := h.engine.Start(h.ctx, id, opts)
	if err != nil {
		h.runErr(w, id, err)
		return
	}
	jsonResp(w, http.StatusAccepted, RunAccepted{Status: "accepted", RunID: runID, Channel: id, Live: opts.Live})
}

func (h *Handler) runErr(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, engine.ErrBusy):
		jsonErr(w, http.StatusConflict, "channel is already running")
	case h.unknown(id):
		jsonErr(w, http.StatusNotFound, "channel not found")
	default:
		zap.L().Error("api: run failed", zap.String("channel", id), zap.Error(err))
		jsonErr(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) unknown(id string) bool {
	_, err := h.engine.Channels().Get(id)
	return err != nil
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func jsonResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, map[string]string{"error": msg})
}
