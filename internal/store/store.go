package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	Credit() Credit
	Product() Product
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db      *gorm.DB
	log     logrus.FieldLogger
	job     Job
	credit  Credit
	product Product
}

func NewStore(db *gorm.DB, log logrus.FieldLogger) Store {
	return &DataStore{
		db:      db,
		log:     log,
		job:     NewJobStore(db),
		credit:  NewCreditStore(db),
		product: NewProductStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Credit() Credit {
	return s.credit
}

func (s *DataStore) Product() Product {
	return s.product
}

func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(
		&model.Job{},
		&model.CreditAccount{},
		&model.Product{},
		&model.ProductImage{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
