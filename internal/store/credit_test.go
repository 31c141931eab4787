package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/config"
	st "github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store"
	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

var _ = Describe("credit store", Ordered, func() {
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
		gormdb.Exec("DELETE from credit_accounts;")
	})

	Context("balance", func() {
		It("reports sufficient credit for a positive balance", func() {
			_, err := s.Credit().Upsert(context.TODO(), model.CreditAccount{RequesterID: "user-1", Balance: 2})
			Expect(err).To(BeNil())

			ok, err := s.Credit().HasSufficientCredit(context.TODO(), "user-1")
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())
		})

		It("reports insufficient credit for a zero balance", func() {
			_, err := s.Credit().Upsert(context.TODO(), model.CreditAccount{RequesterID: "user-1", Balance: 0})
			Expect(err).To(BeNil())

			ok, err := s.Credit().HasSufficientCredit(context.TODO(), "user-1")
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())
		})

		It("reports insufficient credit for an unknown requester", func() {
			ok, err := s.Credit().HasSufficientCredit(context.TODO(), "nobody")
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())
		})
	})

	Context("deduct", func() {
		It("decrements the balance by one", func() {
			_, err := s.Credit().Upsert(context.TODO(), model.CreditAccount{RequesterID: "user-1", Balance: 2})
			Expect(err).To(BeNil())

			err = s.Credit().Deduct(context.TODO(), "user-1")
			Expect(err).To(BeNil())

			account, err := s.Credit().Get(context.TODO(), "user-1")
			Expect(err).To(BeNil())
			Expect(account.Balance).To(Equal(1))
		})

		It("never drives the balance negative", func() {
			_, err := s.Credit().Upsert(context.TODO(), model.CreditAccount{RequesterID: "user-1", Balance: 1})
			Expect(err).To(BeNil())

			err = s.Credit().Deduct(context.TODO(), "user-1")
			Expect(err).To(BeNil())

			err = s.Credit().Deduct(context.TODO(), "user-1")
			Expect(err).To(MatchError(st.ErrInsufficientCredit))

			account, err := s.Credit().Get(context.TODO(), "user-1")
			Expect(err).To(BeNil())
			Expect(account.Balance).To(Equal(0))
		})

		It("fails for an unknown requester", func() {
			err := s.Credit().Deduct(context.TODO(), "nobody")
			Expect(err).To(MatchError(st.ErrInsufficientCredit))
		})
	})

	Context("purchase count", func() {
		It("returns the stored count", func() {
			_, err := s.Credit().Upsert(context.TODO(), model.CreditAccount{RequesterID: "user-1", Balance: 1, PurchaseCount: 25})
			Expect(err).To(BeNil())

			count, err := s.Credit().PurchaseCount(context.TODO(), "user-1")
			Expect(err).To(BeNil())
			Expect(count).To(Equal(25))
		})

		It("returns zero for an unknown requester", func() {
			count, err := s.Credit().PurchaseCount(context.TODO(), "nobody")
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})
	})
})
