package v1alpha1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/handlers/v1alpha1/mappers"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	"github.com/kubev2v/build-orchestrator/pkg/requestid"
)

func (h *ServiceHandler) RegisterJob(w http.ResponseWriter, r *http.Request) {
	log := h.log.With("operation", "register_job", "request_id", requestid.FromRequest(r))

	var req api.RegisterJobRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSrv.Register(r.Context(), req.RepositoryUrl, req.Script, metrics.TriggerClient)
	if err != nil {
		log.Errorw("failed to register job", "repository_url", req.RepositoryUrl, "error", err)
		switch err.(type) {
		case *service.ErrInvalidRepositoryURL:
			respondError(w, r, http.StatusBadRequest, err.Error())
		default:
			respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to register job: %v", err))
		}
		return
	}

	respond(w, r, http.StatusCreated, mappers.JobToApi(*job))
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	log := h.log.With("operation", "list_jobs", "request_id", requestid.FromRequest(r))

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}

	latest := false
	if v := r.URL.Query().Get("latest"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("latest must be a boolean, got %q", v))
			return
		}
		latest = b
	}

	list := h.jobSrv.List
	if latest {
		list = h.jobSrv.ListLatest
	}
	jobs, err := list(r.Context(), limit)
	if err != nil {
		log.Errorw("failed to list jobs", "error", err)
		respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}

	respond(w, r, http.StatusOK, mappers.JobListToApi(jobs))
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobSrv.Get(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			respondError(w, r, http.StatusNotFound, err.Error())
		default:
			h.log.Errorw("failed to get job", "job_id", id, "request_id", requestid.FromRequest(r), "error", err)
			respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job: %v", err))
		}
		return
	}

	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	var update api.JobStatusUpdate
	if err := render.DecodeJSON(r.Body, &update); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := h.validator.Struct(update); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSrv.UpdateStatus(r.Context(), id, mappers.JobUpdateFromApi(update))
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			respondError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrInvalidCommitHash:
			respondError(w, r, http.StatusBadRequest, err.Error())
		case *service.ErrInvalidStatusTransition, *service.ErrCommitHashConflict:
			respondError(w, r, http.StatusConflict, err.Error())
		default:
			h.log.Errorw("failed to update job status", "job_id", id, "request_id", requestid.FromRequest(r), "error", err)
			respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to update job: %v", err))
		}
		return
	}

	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid job id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}
