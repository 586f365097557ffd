package agent

import (
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("active jobs", func() {
	var (
		active *activeJobs
		clock  time.Time
	)

	BeforeEach(func() {
		active = newActiveJobs()
		clock = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		active.now = func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}
	})

	It("moves a job from running to abandoned", func() {
		id := uuid.New()
		active.add(id)
		Expect(active.list(false)).To(Equal([]uuid.UUID{id}))

		active.abandon(id)
		Expect(active.list(false)).To(BeEmpty())
		Expect(active.list(true)).To(Equal([]uuid.UUID{id}))
	})

	It("forgets the oldest abandoned jobs past the limit", func() {
		ids := make([]uuid.UUID, 0, maxAbandonedJobs+5)
		for i := 0; i < maxAbandonedJobs+5; i++ {
			id := uuid.New()
			ids = append(ids, id)
			active.add(id)
			active.abandon(id)
		}
		running := uuid.New()
		active.add(running)

		abandoned := active.list(true)
		Expect(abandoned).To(HaveLen(maxAbandonedJobs))
		for _, id := range ids[:5] {
			Expect(abandoned).NotTo(ContainElement(id))
		}
		Expect(abandoned).To(ContainElement(ids[len(ids)-1]))
		Expect(active.list(false)).To(Equal([]uuid.UUID{running}))
	})

	It("counts an abandoned job dispatched again as running", func() {
		id := uuid.New()
		active.add(id)
		active.abandon(id)
		active.add(id)

		Expect(active.list(true)).To(BeEmpty())
		Expect(active.abandoned).To(BeZero())
		active.remove(id)
		Expect(active.list(false)).To(BeEmpty())
	})
})
