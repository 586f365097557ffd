package rebuilder_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/build-orchestrator/internal/config"
	"github.com/kubev2v/build-orchestrator/internal/rebuilder"
	"github.com/kubev2v/build-orchestrator/internal/service"
	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const insertJobStm = "INSERT INTO jobs (id, repository_url, commit_hash, status, script, created_at, updated_at) VALUES ('%s', '%s', %s, '%s', '%s', '%s', '%s');"

var (
	oldHash = strings.Repeat("a", 40)
	newHash = strings.Repeat("b", 40)
)

func insertJob(db *gorm.DB, url, hash string, status model.JobStatus, script string, createdAt time.Time) uuid.UUID {
	id := uuid.New()
	h := "NULL"
	if hash != "" {
		h = "'" + hash + "'"
	}
	ts := createdAt.UTC().Format("2006-01-02 15:04:05")
	tx := db.Exec(fmt.Sprintf(insertJobStm, id, url, h, status, script, ts, ts))
	Expect(tx.Error).To(BeNil())
	return id
}

func countJobs(db *gorm.DB, url string) int {
	var count int
	tx := db.Raw("SELECT COUNT(*) FROM jobs WHERE repository_url = ?;", url).Scan(&count)
	Expect(tx.Error).To(BeNil())
	return count
}

var _ = Describe("rebuilder", Ordered, func() {
	var (
		s         store.Store
		gormdb    *gorm.DB
		publisher *testPublisher
		git       *fakeGit
		jobs      *service.JobService
		r         *rebuilder.Rebuilder
		cfg       *config.RebuilderConfig
	)

	const (
		repoA = "https://github.com/octo/a.git"
		repoB = "https://github.com/octo/b.git"
	)

	BeforeAll(func() {
		gormdb = newTestDB()
		s = store.NewStore(gormdb)
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		publisher = &testPublisher{}
		git = newFakeGit()
		jobs = service.NewJobService(s, publisher, "build_jobs", service.DefaultListLimit)
		cfg = &config.RebuilderConfig{SleepFor: time.Hour, Timeout: time.Minute}
		r = rebuilder.New(cfg, jobs, git)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	Context("check", func() {
		It("registers a job when the remote moved", func() {
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "make dist", time.Now())
			git.heads[repoA] = newHash

			registered, err := r.Check(context.TODO())
			Expect(err).To(BeNil())
			Expect(registered).To(Equal(1))
			Expect(countJobs(gormdb, repoA)).To(Equal(2))

			published := publisher.Jobs()
			Expect(published).To(HaveLen(1))
			Expect(published[0].RepositoryURL).To(Equal(repoA))
			Expect(published[0].Script).To(Equal("make dist"))
			Expect(published[0].CommitHash).To(BeNil())

			active, err := jobs.HasActiveJob(context.TODO(), repoA)
			Expect(err).To(BeNil())
			Expect(active).To(BeTrue())
		})

		It("registers nothing when the remote did not move", func() {
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "", time.Now())
			git.heads[repoA] = oldHash

			registered, err := r.Check(context.TODO())
			Expect(err).To(BeNil())
			Expect(registered).To(Equal(0))
			Expect(countJobs(gormdb, repoA)).To(Equal(1))
		})

		It("compares against the latest finished job only", func() {
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "", time.Now().Add(-time.Hour))
			insertJob(gormdb, repoA, newHash, model.JobStatusFailed, "", time.Now())
			git.heads[repoA] = newHash

			registered, err := r.Check(context.TODO())
			Expect(err).To(BeNil())
			Expect(registered).To(Equal(0))
		})

		It("continues past an unreachable remote", func() {
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "", time.Now())
			insertJob(gormdb, repoB, oldHash, model.JobStatusFailed, "", time.Now().Add(-time.Minute))
			git.fail[repoA] = true
			git.heads[repoB] = newHash

			registered, err := r.Check(context.TODO())
			Expect(err).To(BeNil())
			Expect(registered).To(Equal(1))
			Expect(git.Calls()).To(ConsistOf(repoA, repoB))
			Expect(countJobs(gormdb, repoA)).To(Equal(1))
			Expect(countJobs(gormdb, repoB)).To(Equal(2))
		})

		It("skips repositories with a job in progress", func() {
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "", time.Now().Add(-time.Minute))
			insertJob(gormdb, repoA, "", model.JobStatusRunning, "", time.Now())
			git.heads[repoA] = newHash

			registered, err := r.Check(context.TODO())
			Expect(err).To(BeNil())
			Expect(registered).To(Equal(0))
			Expect(git.Calls()).To(BeEmpty())
		})

		It("skips jobs without a recorded commit", func() {
			insertJob(gormdb, repoA, "", model.JobStatusFailed, "", time.Now())
			git.heads[repoA] = newHash

			registered, err := r.Check(context.TODO())
			Expect(err).To(BeNil())
			Expect(registered).To(Equal(0))
			Expect(git.Calls()).To(BeEmpty())
		})

		It("fails a pass whose context is done", func() {
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "", time.Now())
			git.heads[repoA] = newHash

			ctx, cancel := context.WithCancel(context.TODO())
			cancel()
			_, err := r.Check(ctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(countJobs(gormdb, repoA)).To(Equal(1))
		})
	})

	Context("run", func() {
		It("checks every period until stopped", func() {
			cfg.SleepFor = 20 * time.Millisecond
			r = rebuilder.New(cfg, jobs, git)
			insertJob(gormdb, repoA, oldHash, model.JobStatusSucceeded, "", time.Now())
			git.heads[repoA] = newHash

			ctx, cancel := context.WithCancel(context.TODO())
			done := make(chan error, 1)
			go func() { done <- r.Run(ctx) }()

			Eventually(publisher.Jobs).Should(HaveLen(1))
			// the new job is QUEUED, later passes leave the repository alone
			Consistently(publisher.Jobs, 100*time.Millisecond).Should(HaveLen(1))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
