// Package api provides HTTP handlers for the heat map server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/heatmapimage/server/internal/export"
	"github.com/heatmapimage/server/internal/heatmap"
	"github.com/heatmapimage/server/internal/jobstore"
	"github.com/heatmapimage/server/internal/render"
	"github.com/heatmapimage/server/internal/service"
	"github.com/heatmapimage/server/pkg/colormap"
)

// maxInlineBody caps POST /api/render request bodies.
const maxInlineBody = 32 << 20

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	JobManager  *JobManager

	// Defaults and Rasterizer serve inline matrices posted to /api/render.
	Defaults   service.RenderDefaults
	Rasterizer *render.Rasterizer

	// AsyncPixels, when positive and a job manager is configured, rejects
	// synchronous renders above this size in favour of render jobs.
	AsyncPixels int64
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/html", "text/plain"))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/api/datasets", datasetsHandler(cfg.Registry))
	r.Get("/api/palettes", palettesHandler)
	r.Post("/api/render", inlineRenderHandler(cfg))

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		syncLimit := int64(0)
		if cfg.JobManager != nil {
			syncLimit = cfg.AsyncPixels
		}
		r.Get("/heatmap", heatmapHandler(syncLimit))
		r.Get("/heatmap.{format}", heatmapHandler(syncLimit))
		r.Get("/region.png", regionHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", metadataHandler)
			r.Get("/layout", layoutHandler)
			r.Get("/stats/{row}", rowStatsHandler)
			r.Get("/slots/{row}", slotsHandler)
			r.Get("/value", valueHandler)
			r.Get("/imagemap", imageMapHandler)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", jobSubmitHandler(cfg.JobManager))
				r.Get("/", jobListHandler(cfg.JobManager))
				r.Get("/{job_id}", jobStatusHandler(cfg.JobManager))
				r.Get("/{job_id}/result", jobResultHandler(cfg.JobManager))
				r.Post("/{job_id}/cancel", jobCancelHandler(cfg.JobManager))
				r.Delete("/{job_id}", jobDeleteHandler(cfg.JobManager))
			})
		})
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects its service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.HeatmapService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.HeatmapService); ok {
		return svc
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, jobstore.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, heatmap.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, heatmap.ErrInvalidConfig),
		errors.Is(err, heatmap.ErrShape),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, colormap.ErrBadColor),
		errors.Is(err, colormap.ErrNoColors):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeImage(w http.ResponseWriter, data []byte, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
		})
	}
}

// palettesHandler lists the registered colormaps with twelve samples each.
func palettesHandler(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string)
	for _, name := range colormap.Names() {
		cm, _ := colormap.Lookup(name)
		n := 12
		if p, ok := cm.(colormap.Palette); ok {
			n = len(p)
		}
		colors := colormap.Discrete(cm, n)
		hex := make([]string, len(colors))
		for i, c := range colors {
			hex[i] = colormap.FormatColor(c)
		}
		out[name] = hex
	}
	writeJSON(w, http.StatusOK, out)
}

// inlineRenderRequest is the body of POST /api/render.
type inlineRenderRequest struct {
	Matrix service.MatrixJSON   `json:"matrix"`
	Params service.RenderParams `json:"params"`
}

// inlineRenderHandler renders a matrix posted in the request body. Nothing is
// cached.
func inlineRenderHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req inlineRenderRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInlineBody)).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		m, err := req.Matrix.Dense()
		if err != nil {
			writeError(w, err)
			return
		}
		svc, err := service.NewHeatmapService(service.HeatmapServiceConfig{
			DatasetID:  "inline",
			Title:      req.Matrix.Title,
			Matrix:     m,
			Defaults:   cfg.Defaults,
			Rasterizer: cfg.Rasterizer,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		data, format, err := svc.Render(r.Context(), req.Params)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Write(data)
	}
}

// heatmapHandler serves a full snapshot. The format comes from the path
// extension, then the format query parameter, then the dataset default.
func heatmapHandler(syncLimit int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}
		p, err := service.ParseRenderParams(r.URL.Query())
		if err != nil {
			writeError(w, err)
			return
		}
		if f := chi.URLParam(r, "format"); f != "" {
			p.Format = f
		}

		if syncLimit > 0 {
			lm, err := svc.Layout(p)
			if err != nil {
				writeError(w, err)
				return
			}
			if px := int64(lm.ImageWidth()) * int64(lm.ImageHeight()); px > syncLimit {
				http.Error(w, fmt.Sprintf("image of %d px exceeds the synchronous limit of %d px; submit a render job",
					px, syncLimit), http.StatusRequestEntityTooLarge)
				return
			}
		}

		data, format, err := svc.Render(r.Context(), p)
		if err != nil {
			writeError(w, err)
			return
		}
		if r.URL.Query().Get("download") != "" {
			w.Header().Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=%q", svc.DatasetID()+format.Extension()))
		}
		writeImage(w, data, format.ContentType())
	}
}

// regionHandler serves the body cells under x, y, w, h (body coordinates).
func regionHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	var rect [4]int
	for i, name := range []string{"x", "y", "w", "h"} {
		v, err := strconv.Atoi(q.Get(name))
		if err != nil {
			http.Error(w, "invalid or missing parameter "+name, http.StatusBadRequest)
			return
		}
		rect[i] = v
	}
	p, err := service.ParseRenderParams(q)
	if err != nil {
		writeError(w, err)
		return
	}
	clip := image.Rect(rect[0], rect[1], rect[0]+rect[2], rect[1]+rect[3])
	data, err := svc.Region(r.Context(), p, clip)
	if err != nil {
		writeError(w, err)
		return
	}
	writeImage(w, data, export.PNG.ContentType())
}

func metadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, svc.Metadata())
}

func layoutHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	p, err := service.ParseRenderParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	lm, err := svc.Layout(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"layout":       lm,
		"image_width":  lm.ImageWidth(),
		"image_height": lm.ImageHeight(),
	})
}

func rowStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	p, err := service.ParseRenderParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := svc.RowStats(p, chi.URLParam(r, "row"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func slotsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	p, err := service.ParseRenderParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	slots, err := svc.Slots(p, chi.URLParam(r, "row"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// valueHandler returns the cell under image point x, y of the full snapshot.
func valueHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be integers", http.StatusBadRequest)
		return
	}
	p, err := service.ParseRenderParams(q)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := svc.ValueAt(p, x, y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func imageMapHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	p, err := service.ParseRenderParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	html, err := svc.ImageMap(p, strings.TrimSpace(r.URL.Query().Get("name")))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

// jobView is the JSON form of a render job.
func jobView(job *jobstore.RenderJob) map[string]interface{} {
	return map[string]interface{}{
		"job_id":      job.ID,
		"dataset_id":  job.DatasetID,
		"status":      job.Status,
		"format":      job.Format,
		"created_at":  job.CreatedAt,
		"started_at":  job.StartedAt,
		"finished_at": job.FinishedAt,
		"progress":    job.Progress,
		"width":       job.Width,
		"height":      job.Height,
		"error":       job.Error,
	}
}

// datasetJob returns the job named in the URL when it belongs to the URL's
// dataset.
func datasetJob(jm *JobManager, r *http.Request) *jobstore.RenderJob {
	job := jm.Get(chi.URLParam(r, "job_id"))
	if job == nil || job.DatasetID != chi.URLParam(r, "dataset") {
		return nil
	}
	return job
}

func jobSubmitHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not available", http.StatusInternalServerError)
			return
		}

		var p service.RenderParams
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil && err != io.EOF {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		// Reject bad parameters now rather than in a failed job.
		if _, err := svc.Layout(p); err != nil {
			writeError(w, err)
			return
		}
		format, err := svc.ResolveFormat(p)
		if err != nil {
			writeError(w, err)
			return
		}

		job, err := jm.Submit(svc.DatasetID(), string(format), p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func jobListHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		jobs, err := jm.List(chi.URLParam(r, "dataset"))
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]map[string]interface{}, len(jobs))
		for i, job := range jobs {
			views[i] = jobView(job)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
	}
}

func jobStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		job := datasetJob(jm, r)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, jobView(job))
	}
}

func jobResultHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		job := datasetJob(jm, r)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if job.Status != jobstore.JobStatusCompleted {
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"job_id": job.ID,
				"status": job.Status,
				"error":  job.Error,
			})
			return
		}
		res, err := jm.Result(job.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeImage(w, res.Data, res.ContentType)
	}
}

func jobCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		job := datasetJob(jm, r)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":    job.ID,
			"cancelled": jm.Cancel(job.ID),
		})
	}
}

// jobDeleteHandler cancels an unfinished job, then removes it and its image.
func jobDeleteHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		job := datasetJob(jm, r)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if !job.Status.Finished() {
			jm.Cancel(job.ID)
		}
		if err := jm.Delete(job.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
