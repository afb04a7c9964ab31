package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"trackfetch/internal/pipeline"
)

type DownloadRequest struct {
	URL string `json:"url"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	SessionDir  string    `json:"session_dir,omitempty"`
	ReportPath  string    `json:"report_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	// Create job config with URL
	jobConfig := s.config
	jobConfig.PlaylistURL = req.URL

	// Create job
	job := s.jobMgr.CreateJob(req.URL, jobConfig)
	s.logger.Info("Created job %s for URL: %s", job.ID, req.URL)

	// Start acquisition in background
	go s.processJob(job)

	// Return job info
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.jobToResponse(job)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	// Extract job ID from path: /api/jobs/{id} or /api/jobs/{id}/cancel
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	// Handle GET /api/jobs/{id}
	if r.Method == http.MethodGet && len(parts) == 1 {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.jobToResponse(job))
		return
	}

	// Handle POST /api/jobs/{id}/cancel
	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "cancel" {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		if job.Cancel != nil {
			job.Cancel()
		}

		s.jobMgr.UpdateJob(jobID, func(j *Job) {
			j.Status = StatusCancelled
		})

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
		return
	}

	http.Error(w, "Invalid request", http.StatusBadRequest)
}

func (s *Server) processJob(job *Job) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Store cancel function in job
	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Cancel = cancel
		j.Status = StatusRunning
	})

	s.logger.Info("Starting job %s", job.ID)

	hooks := pipeline.Hooks{
		OnExpanded: func(total int) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				j.Total = total
			})
		},
		OnTrackDone: func(ok bool) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				j.Done++
				if ok {
					j.Succeeded++
				} else {
					j.Failed++
				}
			})
		},
		OnWarning: func(msg string) {
			s.logger.Warn("job %s: %s", job.ID, msg)
		},
	}

	result, err := pipeline.RunPlaylist(ctx, job.Config, s.backend, s.logger, hooks)
	if err != nil {
		s.logger.Error("Job %s failed: %v", job.ID, err)
		status := StatusFailed
		if ctx.Err() != nil {
			status = StatusCancelled
		}
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			j.Status = status
			j.Error = err.Error()
		})
		return
	}

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.Succeeded = len(result.Files)
		j.Failed = len(result.Failed)
		j.SessionDir = result.SessionDir
		j.ReportPath = result.ReportPath
	})

	s.logger.Info("Job %s completed: %d downloaded, %d failed", job.ID, len(result.Files), len(result.Failed))
}

func (s *Server) jobToResponse(job *Job) *JobResponse {
	resp := &JobResponse{
		ID:         job.ID,
		URL:        job.URL,
		Status:     job.Status,
		Progress:   job.Progress(),
		Total:      job.Total,
		Succeeded:  job.Succeeded,
		Failed:     job.Failed,
		SessionDir: job.SessionDir,
		ReportPath: job.ReportPath,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format("2006-01-02 15:04:05")
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format("2006-01-02 15:04:05")
		resp.CompletedAt = &completed
	}

	return resp
}
