package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/config"
	st "github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = st.NewStore(db, logrus.New())
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from jobs;")
	})

	Context("create and get", func() {
		It("round trips a job", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 2, time.Now()))
			Expect(err).To(BeNil())

			got, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(got.RequesterID).To(Equal("user-1"))
			Expect(got.Priority).To(Equal(2))
			Expect(got.Status).To(Equal(model.JobStatusQueued))
			Expect(got.Attempts).To(Equal(0))
		})

		It("returns not found for an unknown id", func() {
			_, err := s.Job().Get(context.TODO(), newQueuedJob("user-1", 1, time.Now()).ID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("orders by priority then enqueue time", func() {
			base := time.Now().Add(-time.Minute)

			low, err := s.Job().Create(context.TODO(), newQueuedJob("low", 1, base))
			Expect(err).To(BeNil())
			highLate, err := s.Job().Create(context.TODO(), newQueuedJob("high-late", 3, base.Add(10*time.Second)))
			Expect(err).To(BeNil())
			highEarly, err := s.Job().Create(context.TODO(), newQueuedJob("high-early", 3, base))
			Expect(err).To(BeNil())
			medium, err := s.Job().Create(context.TODO(), newQueuedJob("medium", 2, base))
			Expect(err).To(BeNil())

			jobs, err := s.Job().List(context.TODO(),
				st.NewJobQueryFilter().EligibleAt(time.Now()),
				st.NewJobQueryOptions().WithSchedulingOrder(),
			)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(4))
			Expect(jobs[0].ID).To(Equal(highEarly.ID))
			Expect(jobs[1].ID).To(Equal(highLate.ID))
			Expect(jobs[2].ID).To(Equal(medium.ID))
			Expect(jobs[3].ID).To(Equal(low.ID))
		})

		It("excludes jobs inside their backoff window", func() {
			now := time.Now()

			ready := newQueuedJob("ready", 1, now.Add(-time.Minute))
			_, err := s.Job().Create(context.TODO(), ready)
			Expect(err).To(BeNil())

			delayed := newQueuedJob("delayed", 3, now.Add(-time.Minute))
			delayed.NextAttemptAt = now.Add(time.Minute)
			_, err = s.Job().Create(context.TODO(), delayed)
			Expect(err).To(BeNil())

			jobs, err := s.Job().List(context.TODO(),
				st.NewJobQueryFilter().EligibleAt(now),
				st.NewJobQueryOptions().WithSchedulingOrder(),
			)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].RequesterID).To(Equal("ready"))
		})

		It("honors the limit", func() {
			now := time.Now()
			for i := 0; i < 5; i++ {
				_, err := s.Job().Create(context.TODO(), newQueuedJob("user", 1, now.Add(time.Duration(i)*time.Second)))
				Expect(err).To(BeNil())
			}

			jobs, err := s.Job().List(context.TODO(),
				st.NewJobQueryFilter().EligibleAt(now.Add(time.Minute)),
				st.NewJobQueryOptions().WithSchedulingOrder().WithLimit(3),
			)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))
		})
	})

	Context("claim", func() {
		It("moves a queued job to processing", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())

			claimed, err := s.Job().Claim(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(claimed.Status).To(Equal(model.JobStatusProcessing))
		})

		It("refuses a second claim of the same job", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())

			_, err = s.Job().Claim(context.TODO(), created.ID)
			Expect(err).To(BeNil())

			_, err = s.Job().Claim(context.TODO(), created.ID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})

		It("refuses to claim a terminal job", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())

			failed := model.JobStatusFailed
			_, err = s.Job().Update(context.TODO(), created.ID, st.JobUpdate{Status: &failed})
			Expect(err).To(BeNil())

			_, err = s.Job().Claim(context.TODO(), created.ID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("update", func() {
		It("only touches the selected fields", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 2, time.Now()))
			Expect(err).To(BeNil())

			attempts := 2
			message := "transport: connection refused"
			updated, err := s.Job().Update(context.TODO(), created.ID, st.JobUpdate{
				Attempts:  &attempts,
				LastError: &message,
			})
			Expect(err).To(BeNil())
			Expect(updated.Attempts).To(Equal(2))
			Expect(updated.LastError).ToNot(BeNil())

			got, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusQueued))
			Expect(got.Priority).To(Equal(2))
			Expect(*got.LastError).To(Equal(message))
		})
	})

	Context("counters", func() {
		It("counts jobs by status", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())
			_, err = s.Job().Create(context.TODO(), newQueuedJob("user-2", 1, time.Now()))
			Expect(err).To(BeNil())

			_, err = s.Job().Claim(context.TODO(), created.ID)
			Expect(err).To(BeNil())

			queued, err := s.Job().CountByStatus(context.TODO(), model.JobStatusQueued)
			Expect(err).To(BeNil())
			Expect(queued).To(Equal(1))

			processing, err := s.Job().CountByStatus(context.TODO(), model.JobStatusProcessing)
			Expect(err).To(BeNil())
			Expect(processing).To(Equal(1))
		})

		It("counts queued jobs scheduled ahead", func() {
			base := time.Now().Add(-time.Minute)

			_, err := s.Job().Create(context.TODO(), newQueuedJob("high", 3, base.Add(5*time.Second)))
			Expect(err).To(BeNil())
			_, err = s.Job().Create(context.TODO(), newQueuedJob("same-earlier", 2, base))
			Expect(err).To(BeNil())
			mine, err := s.Job().Create(context.TODO(), newQueuedJob("mine", 2, base.Add(2*time.Second)))
			Expect(err).To(BeNil())
			_, err = s.Job().Create(context.TODO(), newQueuedJob("same-later", 2, base.Add(10*time.Second)))
			Expect(err).To(BeNil())
			_, err = s.Job().Create(context.TODO(), newQueuedJob("low", 1, base))
			Expect(err).To(BeNil())

			ahead, err := s.Job().CountQueuedAhead(context.TODO(), mine.Priority, mine.EnqueuedAt)
			Expect(err).To(BeNil())
			Expect(ahead).To(Equal(2))
		})
	})

	Context("recovery", func() {
		It("requeues in-flight jobs", func() {
			created, err := s.Job().Create(context.TODO(), newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())
			_, err = s.Job().Claim(context.TODO(), created.ID)
			Expect(err).To(BeNil())

			n, err := s.Job().RequeueProcessing(context.TODO())
			Expect(err).To(BeNil())
			Expect(n).To(Equal(1))

			got, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusQueued))
		})
	})

	Context("retention", func() {
		It("purges only old terminal jobs", func() {
			oldFailed, err := s.Job().Create(context.TODO(), newQueuedJob("old-failed", 1, time.Now()))
			Expect(err).To(BeNil())
			failed := model.JobStatusFailed
			_, err = s.Job().Update(context.TODO(), oldFailed.ID, st.JobUpdate{Status: &failed})
			Expect(err).To(BeNil())

			queued, err := s.Job().Create(context.TODO(), newQueuedJob("still-queued", 1, time.Now()))
			Expect(err).To(BeNil())

			// age the failed job past the cutoff
			tx := gormdb.Exec("UPDATE jobs SET updated_at = ? WHERE id = ?", time.Now().Add(-48*time.Hour), oldFailed.ID)
			Expect(tx.Error).To(BeNil())

			n, err := s.Job().DeleteTerminalOlderThan(context.TODO(), time.Now().Add(-24*time.Hour))
			Expect(err).To(BeNil())
			Expect(n).To(Equal(1))

			_, err = s.Job().Get(context.TODO(), oldFailed.ID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))

			_, err = s.Job().Get(context.TODO(), queued.ID)
			Expect(err).To(BeNil())
		})
	})
})
