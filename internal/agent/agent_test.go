package agent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	api "github.com/kubev2v/build-orchestrator/api/v1alpha1"
	"github.com/kubev2v/build-orchestrator/internal/agent"
	"github.com/kubev2v/build-orchestrator/internal/artifacts"
	"github.com/kubev2v/build-orchestrator/internal/builder"
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	repoURL = "https://github.com/octo/hello.git"
	hash    = "0123456789abcdef0123456789abcdef01234567"
)

var _ = Describe("agent", func() {
	var (
		cfg       *config.Config
		executor  *fakeExecutor
		status    *fakeStatusClient
		publisher *fakePublisher
		consumer  *fakeConsumer
		a         *agent.Agent
	)

	BeforeEach(func() {
		cfg = config.NewDefault()
		cfg.Agent.MaxWorkers = 2
		cfg.Agent.StatusTimeout = time.Second
		cfg.Agent.ShutdownTimeout = time.Second
		executor = &fakeExecutor{result: builder.Result{Outcome: builder.Succeeded, CommitHash: hash}}
		status = &fakeStatusClient{}
		publisher = &fakePublisher{}
		consumer = newFakeConsumer()
		a = agent.New(cfg, consumer, executor, status, publisher)
	})

	Context("handling a build message", func() {
		It("reports running then succeeded with the commit hash", func() {
			id := uuid.New()
			Expect(a.Handle(context.TODO(), buildMessage(id, repoURL))).To(Succeed())

			Expect(executor.Jobs()).To(HaveLen(1))
			Expect(executor.Jobs()[0].ID).To(Equal(id))
			Expect(executor.Jobs()[0].RepositoryURL).To(Equal(repoURL))

			reports := status.Reports()
			Expect(reports).To(HaveLen(2))
			Expect(reports[0].id).To(Equal(id))
			Expect(reports[0].update.Status).To(Equal(api.JobStatusRunning))
			Expect(reports[0].update.CommitHash).To(BeNil())

			final := reports[1].update
			Expect(final.Status).To(Equal(api.JobStatusSucceeded))
			Expect(*final.CommitHash).To(Equal(hash))
			Expect(*final.ExitCode).To(Equal(0))
			Expect(a.ActiveJobs()).To(BeEmpty())
			Expect(a.AbandonedJobs()).To(BeEmpty())
		})

		It("passes the script of the job to the executor", func() {
			body, err := queue.NewBuildMessage(queue.BuildJob{JobID: uuid.New(), RepositoryURL: repoURL, Script: "make dist"}).Encode()
			Expect(err).To(BeNil())

			Expect(a.Handle(context.TODO(), body)).To(Succeed())
			Expect(executor.Jobs()[0].Script).To(Equal("make dist"))
		})

		It("reports a failed build with its exit code and output", func() {
			executor.result = builder.Result{Outcome: builder.BuildFailed, CommitHash: hash, ExitCode: 2, Diagnostic: "make: *** [all] Error 2"}

			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())

			final := status.Reports()[1].update
			Expect(final.Status).To(Equal(api.JobStatusFailed))
			Expect(*final.CommitHash).To(Equal(hash))
			Expect(*final.ExitCode).To(Equal(2))
			Expect(*final.StatusInfo).To(ContainSubstring("Error 2"))
		})

		It("reports a failed clone without commit hash", func() {
			executor.result = builder.Result{Outcome: builder.CloneFailed, ExitCode: -1, Diagnostic: "repository not found"}

			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())

			final := status.Reports()[1].update
			Expect(final.Status).To(Equal(api.JobStatusFailed))
			Expect(final.CommitHash).To(BeNil())
			Expect(final.ExitCode).To(BeNil())
			Expect(*final.StatusInfo).To(Equal("clone failed: repository not found"))
		})

		It("reports an aborted build as failed", func() {
			executor.result = builder.Result{CommitHash: hash}
			executor.err = errUnreachable

			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())

			final := status.Reports()[1].update
			Expect(final.Status).To(Equal(api.JobStatusFailed))
			Expect(*final.StatusInfo).To(HavePrefix("build aborted: "))
		})

		It("keeps the tail of a long build output", func() {
			output := strings.Repeat("a", 5000) + "the end"
			executor.result = builder.Result{Outcome: builder.BuildFailed, CommitHash: hash, ExitCode: 1, Diagnostic: output}

			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())

			info := *status.Reports()[1].update.StatusInfo
			Expect(info).To(HaveLen(4096))
			Expect(info).To(HaveSuffix("the end"))
		})

		It("abandons the job when it cannot report it as running", func() {
			status.failOn = api.JobStatusRunning

			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())

			Expect(executor.Jobs()).To(BeEmpty())
			Expect(status.Reports()).To(BeEmpty())
			Expect(a.ActiveJobs()).To(BeEmpty())
			Expect(a.AbandonedJobs()).To(HaveLen(1))
		})

		It("acks the message when the final report fails", func() {
			status.failOn = api.JobStatusSucceeded
			id := uuid.New()

			Expect(a.Handle(context.TODO(), buildMessage(id, repoURL))).To(Succeed())
			Expect(executor.Jobs()).To(HaveLen(1))
			Expect(publisher.Messages()).To(BeEmpty())
			Expect(a.ActiveJobs()).To(BeEmpty())
			Expect(a.AbandonedJobs()).To(Equal([]uuid.UUID{id}))
		})

		It("drops a malformed message", func() {
			err := a.Handle(context.TODO(), []byte(`{"kind":"build","build":{"job_id":"not-a-uuid"}}`))
			Expect(err).To(MatchError(queue.ErrInvalidMessage))
			Expect(executor.Jobs()).To(BeEmpty())
		})

		It("drops an artifact message", func() {
			body, err := queue.NewArtifactMessage(queue.ArtifactJob{JobID: uuid.New(), RepositoryURL: repoURL, CommitHash: hash}).Encode()
			Expect(err).To(BeNil())

			Expect(a.Handle(context.TODO(), body)).To(MatchError(queue.ErrInvalidMessage))
		})
	})

	Context("artifacts", func() {
		It("publishes the artifacts of a successful build", func() {
			id := uuid.New()
			executor.result.Artifacts = []artifacts.Artifact{{FileName: "bin/hello", Path: hash + "/bin/hello"}}

			Expect(a.Handle(context.TODO(), buildMessage(id, repoURL))).To(Succeed())

			messages := publisher.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].queue).To(Equal(cfg.Queue.ArtifactQueue))
			Expect(messages[0].msg.Kind).To(Equal(queue.KindArtifact))
			Expect(messages[0].msg.Artifact.JobID).To(Equal(id))
			Expect(messages[0].msg.Artifact.CommitHash).To(Equal(hash))
			Expect(messages[0].msg.Artifact.Artifacts).To(Equal(executor.result.Artifacts))
		})

		It("publishes nothing for a build without artifacts", func() {
			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())
			Expect(publisher.Messages()).To(BeEmpty())
		})

		It("still acks the job when the artifacts cannot be published", func() {
			executor.result.Artifacts = []artifacts.Artifact{{FileName: "hello", Path: hash + "/hello"}}
			publisher.err = errUnreachable

			Expect(a.Handle(context.TODO(), buildMessage(uuid.New(), repoURL))).To(Succeed())
			Expect(status.Statuses()).To(Equal([]api.JobStatus{api.JobStatusRunning, api.JobStatusSucceeded}))
		})
	})

	Context("running", func() {
		It("consumes with a prefetch equal to the number of workers", func() {
			ctx, cancel := context.WithCancel(context.TODO())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()

			Eventually(consumer.started).Should(BeClosed())
			Expect(consumer.Prefetch()).To(Equal(2))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
			Expect(consumer.Stopped()).To(BeTrue())
		})

		It("lets running builds finish on shutdown and requeues new ones", func() {
			cfg.Agent.MaxWorkers = 1
			executor.release = make(chan struct{})
			executor.started = make(chan uuid.UUID, 1)
			a = agent.New(cfg, consumer, executor, status, publisher)
			ctx, cancel := context.WithCancel(context.TODO())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()
			Eventually(consumer.started).Should(BeClosed())

			id := uuid.New()
			handled := make(chan error, 1)
			go func() { handled <- consumer.Deliver(buildMessage(id, repoURL)) }()
			Eventually(executor.started).Should(Receive(Equal(id)))
			Expect(a.ActiveJobs()).To(Equal([]uuid.UUID{id}))

			cancel()
			Eventually(func() error {
				return consumer.Deliver(buildMessage(uuid.New(), repoURL))
			}).Should(MatchError(queue.ErrRequeue))
			Consistently(done, 100*time.Millisecond).ShouldNot(Receive())

			close(executor.release)
			Eventually(handled).Should(Receive(BeNil()))
			Eventually(done).Should(Receive(BeNil()))
			Expect(status.Statuses()).To(Equal([]api.JobStatus{api.JobStatusRunning, api.JobStatusSucceeded}))
		})

		It("stops taking deliveries before waiting for running builds", func() {
			cfg.Agent.ShutdownTimeout = 5 * time.Second
			executor.release = make(chan struct{})
			executor.started = make(chan uuid.UUID, 1)
			a = agent.New(cfg, consumer, executor, status, publisher)
			ctx, cancel := context.WithCancel(context.TODO())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()
			Eventually(consumer.started).Should(BeClosed())

			id := uuid.New()
			consumer.Push(buildMessage(id, repoURL))
			Eventually(executor.started).Should(Receive(Equal(id)))

			cancel()
			Eventually(consumer.Stopped).Should(BeTrue())
			consumer.Push(buildMessage(uuid.New(), repoURL))
			Consistently(consumer.Requeues, 200*time.Millisecond).Should(BeZero())
			Expect(executor.Jobs()).To(HaveLen(1))

			close(executor.release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(status.Statuses()).To(Equal([]api.JobStatus{api.JobStatusRunning, api.JobStatusSucceeded}))
		})

		It("cancels builds still running after the shutdown timeout", func() {
			cfg.Agent.ShutdownTimeout = 50 * time.Millisecond
			executor.release = make(chan struct{})
			executor.started = make(chan uuid.UUID, 1)
			a = agent.New(cfg, consumer, executor, status, publisher)

			ctx, cancel := context.WithCancel(context.TODO())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()
			Eventually(consumer.started).Should(BeClosed())

			go func() { _ = consumer.Deliver(buildMessage(uuid.New(), repoURL)) }()
			Eventually(executor.started).Should(Receive())

			cancel()
			Eventually(done).Should(Receive(BeNil()))

			reports := status.Reports()
			Expect(reports).To(HaveLen(2))
			Expect(reports[1].update.Status).To(Equal(api.JobStatusFailed))
			Expect(*reports[1].update.StatusInfo).To(ContainSubstring("build aborted"))
			Expect(a.ActiveJobs()).To(BeEmpty())
		})
	})

	Context("status api", func() {
		It("lists the active jobs", func() {
			executor.release = make(chan struct{})
			executor.started = make(chan uuid.UUID, 1)
			id := uuid.New()
			go func() { _ = a.Handle(context.TODO(), buildMessage(id, repoURL)) }()
			Eventually(executor.started).Should(Receive())
			defer close(executor.release)

			router := chi.NewRouter()
			agent.RegisterApi(router, a)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/active-jobs", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var reply api.ActiveJobs
			Expect(json.Unmarshal(rec.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.Jobs).To(Equal([]uuid.UUID{id}))
			Expect(reply.Abandoned).To(BeEmpty())
		})

		It("answers health", func() {
			router := chi.NewRouter()
			agent.RegisterApi(router, a)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})
})
