package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/handlers/v1alpha1/mappers"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/pkg/requestid"
)

func (h *ServiceHandler) RecordArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	var reports api.ArtifactReportList
	if err := render.DecodeJSON(r.Body, &reports); err != nil {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	for _, report := range reports {
		if err := h.validator.Struct(report); err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	stored, err := h.artifactSrv.Record(r.Context(), id, mappers.ArtifactsFromApi(reports))
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			respondError(w, r, http.StatusNotFound, err.Error())
		case *service.ErrInvalidArtifact:
			respondError(w, r, http.StatusBadRequest, err.Error())
		case *service.ErrArtifactWithoutBuild:
			respondError(w, r, http.StatusConflict, err.Error())
		default:
			h.log.Errorw("failed to record artifacts", "job_id", id, "request_id", requestid.FromRequest(r), "error", err)
			respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to record artifacts: %v", err))
		}
		return
	}

	respond(w, r, http.StatusCreated, mappers.ArtifactListToApi(stored))
}

func (h *ServiceHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("repository_url")
	hash := r.URL.Query().Get("commit_hash")
	if url == "" && hash == "" {
		respondError(w, r, http.StatusBadRequest, "repository_url or commit_hash is required")
		return
	}
	if hash != "" && !builder.IsCommitHash(hash) {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid commit hash %q", hash))
		return
	}

	list, err := h.artifactSrv.List(r.Context(), url, hash)
	if err != nil {
		h.log.Errorw("failed to list artifacts", "request_id", requestid.FromRequest(r), "error", err)
		respondError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list artifacts: %v", err))
		return
	}

	respond(w, r, http.StatusOK, mappers.ArtifactListToApi(list))
}
