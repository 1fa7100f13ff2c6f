package webui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"srdash/artifacts"
	"srdash/core"
	"srdash/db"
	"srdash/enhance"
	"srdash/pages"
	"srdash/simulation"
)

// BackendStatusProvider reports the backend liveness probe.
// *enhance.BackendHealthMonitor implements it.
type BackendStatusProvider interface {
	State() enhance.HealthState
}

// EnhancementHistory reads recorded enhancement outcomes. *db.Repository
// implements it.
type EnhancementHistory interface {
	ListEnhancements(ctx context.Context, page string, limit int) ([]db.StoredEnhancement, error)
	Stats(ctx context.Context) (db.EnhancementStats, error)
}

// DashboardAPI serves the JSON endpoints of the dashboard.
type DashboardAPI struct {
	manager   *pages.Manager
	store     *artifacts.Store
	pipelines []*simulation.Pipeline
	backend   BackendStatusProvider
	history   EnhancementHistory
	clients   func() int
	logger    *zap.Logger

	defaultLimit   int
	maxLimit       int
	maxUploadBytes int64
}

// DashboardAPIConfig wires a DashboardAPI. Backend and History are optional.
type DashboardAPIConfig struct {
	Manager   *pages.Manager
	Store     *artifacts.Store
	Pipelines []*simulation.Pipeline
	Backend   BackendStatusProvider
	History   EnhancementHistory
	// Clients reports connected WebSocket clients (optional).
	Clients func() int
	Logger  *zap.Logger

	DefaultLimit   int
	MaxLimit       int
	MaxUploadBytes int64
}

// NewDashboardAPI creates the API handlers.
func NewDashboardAPI(config DashboardAPIConfig) *DashboardAPI {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 50
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 500
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = enhance.DefaultMaxUploadBytes
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &DashboardAPI{
		manager:        config.Manager,
		store:          config.Store,
		pipelines:      config.Pipelines,
		backend:        config.Backend,
		history:        config.History,
		clients:        config.Clients,
		logger:         config.Logger.Named("api"),
		defaultLimit:   config.DefaultLimit,
		maxLimit:       config.MaxLimit,
		maxUploadBytes: config.MaxUploadBytes,
	}
}

// RegisterRoutes registers every API route on mux.
func (api *DashboardAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", api.HandleStatus)
	mux.HandleFunc("GET /api/pipelines", api.HandlePipelines)
	mux.HandleFunc("GET /api/pages", api.HandlePages)
	mux.HandleFunc("GET /api/pages/{page}", api.HandlePage)
	mux.HandleFunc("POST /api/pages/{page}/simulation/{action}", api.HandleSimulation)
	mux.HandleFunc("GET /api/pages/{page}/logs", api.HandleLogs)
	mux.HandleFunc("DELETE /api/pages/{page}/logs", api.HandleClearLogs)
	mux.HandleFunc("GET /api/pages/{page}/metrics", api.HandleMetrics)
	mux.HandleFunc("GET /api/pages/{page}/preview-series", api.HandlePreviewSeries)
	mux.HandleFunc("POST /api/pages/{page}/upload", api.HandleUpload)
	mux.HandleFunc("DELETE /api/pages/{page}/upload", api.HandleClearUpload)
	mux.HandleFunc("POST /api/pages/{page}/process", api.HandleProcess)
	mux.HandleFunc("GET /api/artifacts/{id}", api.HandleArtifact)
	mux.HandleFunc("GET /api/enhancements", api.HandleEnhancements)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Health     string              `json:"health"`
	Version    string              `json:"version"`
	BuildTime  string              `json:"build_time,omitempty"`
	GitCommit  string              `json:"git_commit,omitempty"`
	Uptime     string              `json:"uptime"`
	UptimeSecs float64             `json:"uptime_secs"`
	Backend    enhance.HealthState `json:"backend"`
	Pages      int                 `json:"pages"`
	Clients    int                 `json:"clients"`
	Artifacts  int                 `json:"artifacts"`
}

// HandleStatus handles GET /api/status.
func (api *DashboardAPI) HandleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := core.Uptime()
	resp := StatusResponse{
		Health:     "ok",
		Version:    core.Version,
		BuildTime:  core.BuildTime,
		GitCommit:  core.GitCommit,
		Uptime:     FormatDuration(uptime),
		UptimeSecs: uptime.Seconds(),
		Backend:    enhance.HealthState{Status: enhance.StatusUnknown},
		Pages:      len(api.manager.Names()),
	}
	if api.backend != nil {
		resp.Backend = api.backend.State()
	}
	if api.clients != nil {
		resp.Clients = api.clients()
	}
	if api.store != nil {
		resp.Artifacts = api.store.Len()
	}
	api.writeJSON(w, http.StatusOK, resp)
}

// HandlePipelines handles GET /api/pipelines.
func (api *DashboardAPI) HandlePipelines(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{
		"pipelines": api.pipelines,
		"count":     len(api.pipelines),
	})
}

// PageSummary lists a page and what it supports.
type PageSummary struct {
	Name       pages.Name `json:"name"`
	Title      string     `json:"title"`
	Simulation bool       `json:"simulation"`
	Uploads    bool       `json:"uploads"`
}

// HandlePages handles GET /api/pages.
func (api *DashboardAPI) HandlePages(w http.ResponseWriter, r *http.Request) {
	names := api.manager.Names()
	summaries := make([]PageSummary, 0, len(names))
	for _, name := range names {
		ws, ok := api.manager.Get(name)
		if !ok {
			continue
		}
		summaries = append(summaries, PageSummary{
			Name:       name,
			Title:      ws.Title(),
			Simulation: ws.Scheduler() != nil,
			Uploads:    ws.AcceptsUploads(),
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"pages": summaries, "count": len(summaries)})
}

// HandlePage handles GET /api/pages/{page}.
func (api *DashboardAPI) HandlePage(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}
	api.writeJSON(w, http.StatusOK, ws.State())
}

// HandleSimulation handles POST /api/pages/{page}/simulation/{action}.
// Illegal transitions answer 409.
func (api *DashboardAPI) HandleSimulation(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}

	var err error
	switch action := r.PathValue("action"); action {
	case "start":
		err = ws.Start()
	case "pause":
		err = ws.Pause()
	case "resume":
		err = ws.Resume()
	case "reset":
		err = ws.Reset()
	default:
		api.writeError(w, http.StatusNotFound, "unknown simulation action: "+action)
		return
	}
	if err != nil {
		api.writeError(w, statusFor(err), err.Error())
		return
	}
	api.writeJSON(w, http.StatusOK, ws.State())
}

// LogsResponse is the body of GET /api/pages/{page}/logs.
type LogsResponse struct {
	Entries []simulation.Entry `json:"entries"`
	Count   int                `json:"count"`
	Total   int                `json:"total"`
}

// HandleLogs handles GET /api/pages/{page}/logs. limit returns the most
// recent entries; without it every retained entry is returned.
func (api *DashboardAPI) HandleLogs(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}

	logs := ws.Logs()
	var entries []simulation.Entry
	if limit, ok := parseLimit(r, 0, api.maxLimit); ok && limit > 0 {
		entries = logs.Recent(limit)
	} else {
		entries = logs.Entries()
	}
	if entries == nil {
		entries = []simulation.Entry{}
	}
	api.writeJSON(w, http.StatusOK, LogsResponse{
		Entries: entries,
		Count:   len(entries),
		Total:   logs.Len(),
	})
}

// HandleClearLogs handles DELETE /api/pages/{page}/logs.
func (api *DashboardAPI) HandleClearLogs(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}
	ws.ClearLogs()
	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics handles GET /api/pages/{page}/metrics.
func (api *DashboardAPI) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}
	api.writeJSON(w, http.StatusOK, ws.Metrics())
}

// HandlePreviewSeries handles GET /api/pages/{page}/preview-series.
func (api *DashboardAPI) HandlePreviewSeries(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}
	view, err := ws.PreviewSeries()
	if err != nil {
		api.writeError(w, statusFor(err), err.Error())
		return
	}
	api.writeJSON(w, http.StatusOK, view)
}

// HandleUpload handles POST /api/pages/{page}/upload with the image in the
// multipart field "image". A rejected file answers 422 with the inline
// message the page now shows.
func (api *DashboardAPI) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}
	if !ws.AcceptsUploads() {
		api.writeError(w, http.StatusConflict, pages.ErrNoUpload.Error())
		return
	}

	// Room for the multipart envelope around a maximum-size image.
	r.Body = http.MaxBytesReader(w, r.Body, api.maxUploadBytes+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.writeError(w, http.StatusRequestEntityTooLarge, enhance.MsgTooLarge)
			return
		}
		api.writeError(w, http.StatusBadRequest, enhance.MsgNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	a, err := ws.SelectFile(enhance.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		api.writeError(w, statusFor(err), err.Error())
		return
	}
	api.writeJSON(w, http.StatusCreated, a)
}

// HandleClearUpload handles DELETE /api/pages/{page}/upload.
func (api *DashboardAPI) HandleClearUpload(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}
	ws.ClearFile()
	w.WriteHeader(http.StatusNoContent)
}

// HandleProcess handles POST /api/pages/{page}/process?scale=N. The task
// settles asynchronously; clients follow it through the page state.
func (api *DashboardAPI) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ws, ok := api.page(w, r)
	if !ok {
		return
	}

	scale := 4
	if s := r.URL.Query().Get("scale"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil {
			api.writeError(w, http.StatusBadRequest, enhance.ErrInvalidScale.Error())
			return
		}
		scale = parsed
	}

	task, err := ws.Process(scale)
	if err != nil {
		api.writeError(w, statusFor(err), err.Error())
		return
	}
	api.writeJSON(w, http.StatusAccepted, task)
}

// HandleArtifact handles GET /api/artifacts/{id}. ?thumb=N returns a PNG
// scaled to fit N pixels.
func (api *DashboardAPI) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	meta, data, ok := api.store.Get(r.PathValue("id"))
	if !ok {
		api.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	contentType := meta.ContentType
	if t := r.URL.Query().Get("thumb"); t != "" {
		side, err := strconv.Atoi(t)
		if err != nil || side <= 0 {
			api.writeError(w, http.StatusBadRequest, "thumb must be a positive integer")
			return
		}
		thumb, err := artifacts.Thumbnail(data, side)
		if err != nil {
			api.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		data, contentType = thumb, "image/png"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// EnhancementsResponse is the body of GET /api/enhancements.
type EnhancementsResponse struct {
	Enhancements []db.StoredEnhancement `json:"enhancements"`
	Count        int                    `json:"count"`
	Limit        int                    `json:"limit"`
	Stats        db.EnhancementStats    `json:"stats"`
}

// HandleEnhancements handles GET /api/enhancements?limit=N&page=P.
func (api *DashboardAPI) HandleEnhancements(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		api.writeError(w, http.StatusServiceUnavailable, "enhancement history is disabled")
		return
	}

	limit, _ := parseLimit(r, api.defaultLimit, api.maxLimit)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	records, err := api.history.ListEnhancements(ctx, r.URL.Query().Get("page"), limit)
	if err != nil {
		api.logger.Error("failed to list enhancements", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to read enhancement history")
		return
	}
	stats, err := api.history.Stats(ctx)
	if err != nil {
		api.logger.Error("failed to read enhancement stats", zap.Error(err))
		api.writeError(w, http.StatusInternalServerError, "failed to read enhancement history")
		return
	}
	if records == nil {
		records = []db.StoredEnhancement{}
	}
	api.writeJSON(w, http.StatusOK, EnhancementsResponse{
		Enhancements: records,
		Count:        len(records),
		Limit:        limit,
		Stats:        stats,
	})
}

// page resolves {page} or writes a 404.
func (api *DashboardAPI) page(w http.ResponseWriter, r *http.Request) (*pages.Workspace, bool) {
	name := r.PathValue("page")
	ws, ok := api.manager.Get(pages.Name(name))
	if !ok {
		api.writeError(w, http.StatusNotFound, "unknown page: "+name)
		return nil, false
	}
	return ws, true
}

// parseLimit reads ?limit=, clamped to ceiling. ok is false when absent or
// invalid, in which case def is returned.
func parseLimit(r *http.Request, def, ceiling int) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return def, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def, false
	}
	if n > ceiling {
		n = ceiling
	}
	return n, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, simulation.ErrAlreadyRunning),
		errors.Is(err, simulation.ErrNotRunning),
		errors.Is(err, simulation.ErrNotPaused),
		errors.Is(err, simulation.ErrResumeUnsupported),
		errors.Is(err, pages.ErrTaskPending),
		errors.Is(err, pages.ErrNoSimulation),
		errors.Is(err, pages.ErrNoUpload):
		return http.StatusConflict
	case errors.Is(err, pages.ErrNoPreview):
		return http.StatusNotFound
	case errors.Is(err, pages.ErrNoInput),
		errors.Is(err, enhance.ErrInvalidScale):
		return http.StatusBadRequest
	case enhance.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, artifacts.ErrBudgetExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, simulation.ErrClosed),
		errors.Is(err, pages.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (api *DashboardAPI) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Debug("failed to encode response", zap.Error(err))
	}
}

func (api *DashboardAPI) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
