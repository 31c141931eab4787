package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/config"
	st "github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

func newQueuedJob(requesterID string, priority int, enqueuedAt time.Time) model.Job {
	return model.Job{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		SourceImageRef: "photos/subject.png",
		TargetItemID:   "item-1",
		Status:         model.JobStatusQueued,
		Priority:       priority,
		MaxAttempts:    3,
		EnqueuedAt:     enqueuedAt,
		NextAttemptAt:  enqueuedAt,
	}
}

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db, logrus.New())
		Expect(store).ToNot(BeNil())
		Expect(store.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		store.Close()
	})

	Context("transaction", func() {
		It("commits a job insert", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())

			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rolls back a job insert", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Create(ctx, newQueuedJob("user-1", 1, time.Now()))
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())

			// visible inside the transaction
			jobs, err := store.Job().List(ctx, st.NewJobQueryFilter(), st.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))

			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		AfterEach(func() {
			gormDB.Exec("DELETE from jobs;")
		})
	})
})
