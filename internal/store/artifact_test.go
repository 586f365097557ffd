package store_test

import (
	"context"

	"github.com/kubev2v/build-orchestrator/internal/store"
	"github.com/kubev2v/build-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("artifact store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		gormdb = newTestDB()
		s = store.NewStore(gormdb)
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM artifacts;")
	})

	artifact := func(url, hash, name string) model.Artifact {
		return model.Artifact{RepositoryURL: url, CommitHash: hash, FileName: name, Path: hash + "/" + name}
	}

	It("stores artifacts", func() {
		created, err := s.Artifact().Create(context.TODO(), model.ArtifactList{
			artifact("https://example.com/a.git", hashA, "hello"),
			artifact("https://example.com/a.git", hashA, "hello.o"),
		})
		Expect(err).To(BeNil())
		Expect(created).To(HaveLen(2))
		Expect(created[0].FileName).To(Equal("hello"))
		Expect(created[0].Path).To(Equal(hashA + "/hello"))
	})

	It("does nothing for an empty list", func() {
		created, err := s.Artifact().Create(context.TODO(), nil)
		Expect(err).To(BeNil())
		Expect(created).To(BeEmpty())
	})

	It("is idempotent for the same repository, commit and file", func() {
		first, err := s.Artifact().Create(context.TODO(), model.ArtifactList{artifact("https://example.com/a.git", hashA, "hello")})
		Expect(err).To(BeNil())

		second, err := s.Artifact().Create(context.TODO(), model.ArtifactList{
			artifact("https://example.com/a.git", hashA, "hello"),
			artifact("https://example.com/a.git", hashA, "libhello.so"),
		})
		Expect(err).To(BeNil())
		Expect(second).To(HaveLen(2))
		Expect(second[0].ID).To(Equal(first[0].ID))

		count := 0
		Expect(gormdb.Raw("SELECT COUNT(*) FROM artifacts;").Scan(&count).Error).To(BeNil())
		Expect(count).To(Equal(2))
	})

	It("lists artifacts of one commit", func() {
		_, err := s.Artifact().Create(context.TODO(), model.ArtifactList{artifact("https://example.com/a.git", hashA, "hello")})
		Expect(err).To(BeNil())
		_, err = s.Artifact().Create(context.TODO(), model.ArtifactList{artifact("https://example.com/a.git", hashB, "hello")})
		Expect(err).To(BeNil())
		_, err = s.Artifact().Create(context.TODO(), model.ArtifactList{artifact("https://example.com/b.git", hashA, "hello")})
		Expect(err).To(BeNil())

		artifacts, err := s.Artifact().List(context.TODO(), store.NewArtifactQueryFilter().ByRepositoryURL("https://example.com/a.git").ByCommitHash(hashA))
		Expect(err).To(BeNil())
		Expect(artifacts).To(HaveLen(1))

		artifacts, err = s.Artifact().List(context.TODO(), store.NewArtifactQueryFilter().ByRepositoryURL("https://example.com/a.git"))
		Expect(err).To(BeNil())
		Expect(artifacts).To(HaveLen(2))
	})
})
