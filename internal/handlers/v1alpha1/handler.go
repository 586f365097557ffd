package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/handlers/validator"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/pkg/requestid"
	"go.uber.org/zap"
)

type ServiceHandler struct {
	jobSrv      *service.JobService
	artifactSrv *service.ArtifactService
	validator   *validator.Validator
	log         *zap.SugaredLogger
}

func NewServiceHandler(jobService *service.JobService, artifactService *service.ArtifactService) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)
	v.Register(validator.NewArtifactValidationRules()...)

	return &ServiceHandler{
		jobSrv:      jobService,
		artifactSrv: artifactService,
		validator:   v,
		log:         zap.S().Named("handler"),
	}
}

// Routes mounts the v1 api on r.
func (h *ServiceHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs/register", h.RegisterJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)
		r.Patch("/jobs/{id}", h.UpdateJobStatus)
		r.Post("/jobs/{id}/artifacts", h.RecordArtifacts)
		r.Get("/artifacts", h.ListArtifacts)
	})
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respond(w, r, status, api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}
