package service_test

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	"github.com/kubev2v/build-orchestrator/pkg/metrics"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	buildQueue = "build_jobs"

	insertJobStm = "INSERT INTO jobs (id, repository_url, commit_hash, status, script, status_info, created_at, updated_at) VALUES ('%s', '%s', %s, '%s', '', '', '%s', '%s');"
)

func insertJob(db *gorm.DB, url string, hash string, status model.JobStatus, createdAt time.Time) uuid.UUID {
	id := uuid.New()
	h := "NULL"
	if hash != "" {
		h = "'" + hash + "'"
	}
	ts := createdAt.UTC().Format("2006-01-02 15:04:05")
	tx := db.Exec(fmt.Sprintf(insertJobStm, id, url, h, status, ts, ts))
	Expect(tx.Error).To(BeNil())
	return id
}

var _ = Describe("job service", Ordered, func() {
	var (
		s         store.Store
		gormdb    *gorm.DB
		publisher *testPublisher
		srv       *service.JobService
		hash      = strings.Repeat("a", 40)
	)

	BeforeAll(func() {
		gormdb = newTestDB()
		s = store.NewStore(gormdb)
		publisher = newTestPublisher()
		srv = service.NewJobService(s, publisher, buildQueue, 10)
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
		publisher.Reset()
	})

	Context("register", func() {
		It("successfully registers a job and publishes it", func() {
			job, err := srv.Register(context.TODO(), "https://github.com/example/hello.git", "make all", metrics.TriggerClient)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.CommitHash).To(BeNil())
			Expect(job.CreatedAt.IsZero()).To(BeFalse())

			messages := publisher.Messages(buildQueue)
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Build).NotTo(BeNil())
			Expect(messages[0].Build.JobID).To(Equal(job.ID))
			Expect(messages[0].Build.RepositoryURL).To(Equal("https://github.com/example/hello.git"))
			Expect(messages[0].Build.Script).To(Equal("make all"))

			var count int
			tx := gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count)
			Expect(tx.Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		DescribeTable("rejects urls not using https",
			func(url string) {
				_, err := srv.Register(context.TODO(), url, "", metrics.TriggerClient)
				Expect(err).NotTo(BeNil())
				Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidRepositoryURL{})))

				var count int
				tx := gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count)
				Expect(tx.Error).To(BeNil())
				Expect(count).To(BeZero())
				Expect(publisher.Messages(buildQueue)).To(BeEmpty())
			},
			Entry("empty", ""),
			Entry("http", "http://github.com/example/hello.git"),
			Entry("scp like", "git@github.com:example/hello.git"),
			Entry("ssh", "ssh://git@github.com/example/hello.git"),
			Entry("bare domain", "github.com/example/hello.git"),
			Entry("https without repository", "https://github.com"),
			Entry("uppercase scheme", "HTTPS://github.com/example/hello.git"),
			Entry("whitespaces", "https://github.com/example/hello world.git"),
		)

		It("removes the job when the publish fails", func() {
			publisher.Fail(errBrokerDown)

			_, err := srv.Register(context.TODO(), "https://github.com/example/hello.git", "", metrics.TriggerClient)
			Expect(err).To(MatchError(errBrokerDown))

			var count int
			tx := gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count)
			Expect(tx.Error).To(BeNil())
			Expect(count).To(BeZero())
		})
	})

	Context("get", func() {
		It("successfully gets a job", func() {
			id := insertJob(gormdb, "https://example.com/a.git", "", model.JobStatusQueued, time.Now())

			job, err := srv.Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(id))
		})

		It("fails with not found for an unknown job", func() {
			_, err := srv.Get(context.TODO(), uuid.New())
			Expect(err).NotTo(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
		})
	})

	Context("list", func() {
		It("returns the 10 most recent jobs out of 15", func() {
			base := time.Now().Add(-time.Hour)
			for i := 0; i < 15; i++ {
				_, err := srv.Register(context.TODO(), fmt.Sprintf("https://example.com/repo-%02d.git", i), "", metrics.TriggerClient)
				Expect(err).To(BeNil())
				gormdb.Exec("UPDATE jobs SET created_at = ? WHERE repository_url = ?", base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("https://example.com/repo-%02d.git", i))
			}

			jobs, err := srv.List(context.TODO(), 0)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(10))
			Expect(jobs[0].RepositoryURL).To(Equal("https://example.com/repo-14.git"))
			Expect(jobs[9].RepositoryURL).To(Equal("https://example.com/repo-05.git"))
		})

		It("honors an explicit limit and caps it", func() {
			for i := 0; i < 3; i++ {
				insertJob(gormdb, fmt.Sprintf("https://example.com/repo-%d.git", i), "", model.JobStatusQueued, time.Now())
			}

			jobs, err := srv.List(context.TODO(), 2)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))

			jobs, err = srv.List(context.TODO(), service.MaxListLimit*10)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))
		})

		It("lists the latest terminal job of each repository", func() {
			now := time.Now()
			insertJob(gormdb, "https://example.com/a.git", hash, model.JobStatusSucceeded, now.Add(-3*time.Minute))
			latest := insertJob(gormdb, "https://example.com/a.git", hash, model.JobStatusFailed, now.Add(-2*time.Minute))
			insertJob(gormdb, "https://example.com/a.git", "", model.JobStatusQueued, now.Add(-time.Minute))
			insertJob(gormdb, "https://example.com/b.git", "", model.JobStatusRunning, now)

			jobs, err := srv.ListLatest(context.TODO(), 0)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal(latest))
		})

		It("lists every repository when asked for all of them", func() {
			now := time.Now()
			for i := 0; i < service.DefaultListLimit+2; i++ {
				insertJob(gormdb, fmt.Sprintf("https://example.com/repo-%d.git", i), hash, model.JobStatusSucceeded, now.Add(-time.Duration(i)*time.Second))
			}

			jobs, err := srv.LatestByRepository(context.TODO())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(service.DefaultListLimit + 2))

			jobs, err = srv.ListLatest(context.TODO(), 0)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(service.DefaultListLimit))
		})

		It("reports repositories with an active job", func() {
			insertJob(gormdb, "https://example.com/a.git", "", model.JobStatusRunning, time.Now())
			insertJob(gormdb, "https://example.com/b.git", hash, model.JobStatusSucceeded, time.Now())

			active, err := srv.HasActiveJob(context.TODO(), "https://example.com/a.git")
			Expect(err).To(BeNil())
			Expect(active).To(BeTrue())

			active, err = srv.HasActiveJob(context.TODO(), "https://example.com/b.git")
			Expect(err).To(BeNil())
			Expect(active).To(BeFalse())
		})
	})

	Context("update status", func() {
		It("walks a job through its lifecycle", func() {
			id := insertJob(gormdb, "https://example.com/a.git", "", model.JobStatusQueued, time.Now())

			job, err := srv.UpdateStatus(context.TODO(), id, model.JobUpdate{Status: model.JobStatusRunning})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusRunning))

			exitCode := 0
			job, err = srv.UpdateStatus(context.TODO(), id, model.JobUpdate{Status: model.JobStatusSucceeded, CommitHash: &hash, ExitCode: &exitCode})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusSucceeded))
			Expect(*job.CommitHash).To(Equal(hash))
			Expect(*job.ExitCode).To(Equal(0))
		})

		It("refuses to leave a terminal status", func() {
			id := insertJob(gormdb, "https://example.com/a.git", hash, model.JobStatusSucceeded, time.Now())

			_, err := srv.UpdateStatus(context.TODO(), id, model.JobUpdate{Status: model.JobStatusFailed})
			Expect(err).NotTo(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidStatusTransition{})))

			job, err := srv.Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusSucceeded))
		})

		It("treats a repeated terminal report as a no-op", func() {
			id := insertJob(gormdb, "https://example.com/a.git", hash, model.JobStatusFailed, time.Now())

			job, err := srv.UpdateStatus(context.TODO(), id, model.JobUpdate{Status: model.JobStatusFailed})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusFailed))
		})

		It("refuses a different commit hash", func() {
			id := insertJob(gormdb, "https://example.com/a.git", hash, model.JobStatusRunning, time.Now())
			other := strings.Repeat("b", 40)

			_, err := srv.UpdateStatus(context.TODO(), id, model.JobUpdate{Status: model.JobStatusSucceeded, CommitHash: &other})
			Expect(err).NotTo(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrCommitHashConflict{})))
		})

		It("refuses a malformed commit hash", func() {
			id := insertJob(gormdb, "https://example.com/a.git", "", model.JobStatusRunning, time.Now())
			short := "abc"

			_, err := srv.UpdateStatus(context.TODO(), id, model.JobUpdate{Status: model.JobStatusSucceeded, CommitHash: &short})
			Expect(err).NotTo(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrInvalidCommitHash{})))
		})

		It("fails with not found for an unknown job", func() {
			_, err := srv.UpdateStatus(context.TODO(), uuid.New(), model.JobUpdate{Status: model.JobStatusRunning})
			Expect(err).NotTo(BeNil())
			Expect(reflect.TypeOf(err)).To(Equal(reflect.TypeOf(&service.ErrResourceNotFound{})))
		})
	})
})
