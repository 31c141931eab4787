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

var _ = Describe("product store", Ordered, func() {
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
		gormdb.Exec("DELETE from product_images;")
		gormdb.Exec("DELETE from products;")
	})

	Context("get", func() {
		It("preloads the product images", func() {
			_, err := s.Product().Create(context.TODO(), model.Product{
				ID:   "dress-1",
				Name: "Summer Dress",
				Images: []model.ProductImage{
					{ImageRef: "products/dress-1/front.png", Position: 0},
					{ImageRef: "products/dress-1/back.png", Position: 1},
				},
			})
			Expect(err).To(BeNil())

			product, err := s.Product().Get(context.TODO(), "dress-1")
			Expect(err).To(BeNil())
			Expect(product.Name).To(Equal("Summer Dress"))
			Expect(product.Images).To(HaveLen(2))
		})

		It("returns not found for an unknown product", func() {
			_, err := s.Product().Get(context.TODO(), "nothing")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("source images", func() {
		It("returns the references in display order", func() {
			_, err := s.Product().Create(context.TODO(), model.Product{
				ID: "jacket-1",
				Images: []model.ProductImage{
					{ImageRef: "products/jacket-1/detail.png", Position: 2},
					{ImageRef: "products/jacket-1/front.png", Position: 0},
					{ImageRef: "products/jacket-1/back.png", Position: 1},
				},
			})
			Expect(err).To(BeNil())

			refs, err := s.Product().GetSourceImages(context.TODO(), "jacket-1")
			Expect(err).To(BeNil())
			Expect(refs).To(Equal([]string{
				"products/jacket-1/front.png",
				"products/jacket-1/back.png",
				"products/jacket-1/detail.png",
			}))
		})

		It("returns an empty list for a product without images", func() {
			_, err := s.Product().Create(context.TODO(), model.Product{ID: "bare-1"})
			Expect(err).To(BeNil())

			refs, err := s.Product().GetSourceImages(context.TODO(), "bare-1")
			Expect(err).To(BeNil())
			Expect(refs).To(BeEmpty())
		})
	})
})
