package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
)

func RegisterApi(router chi.Router, a *Agent) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, VersionReply{Version: version})
	})
	router.Get("/api/v1/active-jobs", func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, ActiveJobsReply{ActiveJobs: api.ActiveJobs{Jobs: a.ActiveJobs(), Abandoned: a.AbandonedJobs()}})
	})
	router.Handle("/metrics", metrics.Handler())
}

type VersionReply struct {
	Version string `json:"version"`
}

type ActiveJobsReply struct {
	api.ActiveJobs
}

func (v VersionReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (a ActiveJobsReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
