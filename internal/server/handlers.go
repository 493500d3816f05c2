package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/HaoJinjin/open-soda/internal/cache"
	"github.com/HaoJinjin/open-soda/internal/indicators"
	"github.com/HaoJinjin/open-soda/internal/jobs"
	"github.com/HaoJinjin/open-soda/internal/prediction"
	"github.com/HaoJinjin/open-soda/internal/responsetime"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
)

type convertRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

type predictRequest struct {
	TargetColumn string `json:"target_column" binding:"required"`
	CSVPath      string `json:"csv_path"`
}

type pathRequest struct {
	CSVPath string `json:"csv_path"`
}

// bindOptional decodes a JSON body that may be absent, including chunked
// bodies of unknown length. It writes a 422 and reports false on bad input.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func detail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"detail": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	job := s.registry.Submit(jobs.KindConvert, jobs.ConvertCSV(req.FilePath))
	c.JSON(http.StatusOK, gin.H{"task_id": job.ID})
}

// jobStatus is the /status body. Errors lists persisted failure messages.
type jobStatus struct {
	jobs.Job
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) status(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("task_id")

	job, err := s.registry.Get(id)
	if errors.Is(err, errors.ErrJobNotFound) && s.store != nil {
		job, err = s.store.GetJob(ctx, id)
		if err == nil {
			job = interrupted(job)
		}
	}
	if errors.Is(err, errors.ErrJobNotFound) {
		detail(c, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}

	resp := jobStatus{Job: job}
	if job.Status == jobs.StatusFailed && s.store != nil {
		msgs, err := s.store.JobErrors(ctx, id)
		if err != nil {
			s.logger.Warn("Job errors not loaded", err, log.JobIDKey, id)
		}
		resp.Errors = msgs
	}
	c.JSON(http.StatusOK, resp)
}

// interrupted marks a stored job that never reached a terminal state. Only
// jobs of an earlier process are read from the store, and those no longer run.
func interrupted(job jobs.Job) jobs.Job {
	if !job.Status.Terminal() {
		job.Status = jobs.StatusFailed
		job.Message = "Interrupted by a service restart"
	}
	return job
}

// listJobs returns job summaries without their results, oldest first. With
// a store it shows the most recent listLimit persisted jobs, overlaid with
// the live state of jobs of this process.
func (s *Server) listJobs(c *gin.Context) {
	all := s.registry.List()
	if s.store != nil {
		stored, err := s.store.ListJobs(c.Request.Context(), listLimit)
		if err != nil {
			detail(c, http.StatusInternalServerError, err.Error())
			return
		}
		all = mergeJobs(stored, all)
	}

	out := make([]gin.H, 0, len(all))
	for _, job := range all {
		out = append(out, gin.H{
			"task_id":    job.ID,
			"kind":       job.Kind,
			"status":     job.Status,
			"progress":   job.Progress,
			"message":    job.Message,
			"created_at": job.CreatedAt,
			"updated_at": job.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// mergeJobs combines stored jobs (newest first) with live ones and returns
// them oldest first. Live snapshots win for jobs present in both.
func mergeJobs(stored, live []jobs.Job) []jobs.Job {
	byID := make(map[string]int, len(live))
	for i, j := range live {
		byID[j.ID] = i
	}
	out := make([]jobs.Job, 0, len(stored)+len(live))
	for i := len(stored) - 1; i >= 0; i-- {
		if _, ok := byID[stored[i].ID]; ok {
			continue
		}
		out = append(out, interrupted(stored[i]))
	}
	out = append(out, live...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (s *Server) predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.runPrediction(c, s.csvPath(req.CSVPath), req.TargetColumn)
}

func (s *Server) predictFork(c *gin.Context) {
	var req pathRequest
	if !bindOptional(c, &req) {
		return
	}
	s.runPrediction(c, s.csvPath(req.CSVPath), s.cfg.Data.ForkTarget)
}

func (s *Server) runPrediction(c *gin.Context, path, target string) {
	ctx := c.Request.Context()
	key, cacheable := s.cacheKey("prediction", path, target)

	var cached prediction.Result
	if cacheable && s.cache.Get(ctx, key, &cached) {
		predictionsTotal.WithLabelValues("cached").Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "data": &cached})
		return
	}

	result, err := s.pipeline.RunFile(path, target)
	if err != nil {
		predictionsTotal.WithLabelValues("failed").Inc()
		detail(c, http.StatusInternalServerError, "prediction failed: "+err.Error())
		return
	}
	predictionsTotal.WithLabelValues("ok").Inc()
	if cacheable {
		s.remember(ctx, key, result)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func (s *Server) indicatorStatistics(c *gin.Context) {
	ctx := c.Request.Context()
	path := s.csvPath(c.Query("csv_path"))
	key, cacheable := s.cacheKey("indicators", path)

	var cached indicators.Statistics
	if cacheable && s.cache.Get(ctx, key, &cached) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": &cached})
		return
	}

	stats, err := indicators.ComputeFile(path)
	if err != nil {
		detail(c, http.StatusInternalServerError, "indicator statistics failed: "+err.Error())
		return
	}
	if cacheable {
		s.remember(ctx, key, stats)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}

func (s *Server) predictResponseTime(c *gin.Context) {
	var req pathRequest
	if !bindOptional(c, &req) {
		return
	}
	path := s.csvPath(req.CSVPath)
	job := s.registry.Submit(jobs.KindResponseTime, func(progress jobs.ProgressFunc) (any, error) {
		return responsetime.PredictFile(path, responsetime.ProgressFunc(progress))
	})
	c.JSON(http.StatusOK, gin.H{"task_id": job.ID})
}

func (s *Server) csvPath(requested string) string {
	if requested != "" {
		return requested
	}
	return s.cfg.Data.CSVPath
}

// cacheKey includes the file's size and modification time so an edited
// file is recomputed. Unreadable files are never cached.
func (s *Server) cacheKey(kind, path string, parts ...string) (string, bool) {
	if !s.cache.Available() {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	parts = append([]string{path, strconv.FormatInt(info.Size(), 10), strconv.FormatInt(info.ModTime().UnixNano(), 10)}, parts...)
	return cache.Key(kind, parts...), true
}

func (s *Server) remember(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("Result not cached", err, "cache.key", key)
	}
}
