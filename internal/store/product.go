package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

type Product interface {
	Get(ctx context.Context, id string) (*model.Product, error)
	Create(ctx context.Context, product model.Product) (*model.Product, error)
	GetSourceImages(ctx context.Context, id string) ([]string, error)
}

type ProductStore struct {
	db *gorm.DB
}

// Make sure we conform to Product interface
var _ Product = (*ProductStore)(nil)

func NewProductStore(db *gorm.DB) Product {
	return &ProductStore{db: db}
}

func (s *ProductStore) Get(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	result := s.getDB(ctx).Preload("Images").First(&product, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying product: %w", result.Error)
	}
	return &product, nil
}

func (s *ProductStore) Create(ctx context.Context, product model.Product) (*model.Product, error) {
	result := s.getDB(ctx).Create(&product)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating product: %w", result.Error)
	}
	return &product, nil
}

// GetSourceImages returns the product's source image references in
// display order.
func (s *ProductStore) GetSourceImages(ctx context.Context, id string) ([]string, error) {
	var images []model.ProductImage
	result := s.getDB(ctx).Where("product_id = ?", id).Order("position ASC").Find(&images)
	if result.Error != nil {
		return nil, fmt.Errorf("querying product images: %w", result.Error)
	}

	refs := make([]string, 0, len(images))
	for _, img := range images {
		refs = append(refs, img.ImageRef)
	}
	return refs, nil
}

func (s *ProductStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
