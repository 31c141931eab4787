package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ameralokeh/ai-tryon-virtual-plugin-sub002/internal/store/model"
)

type Credit interface {
	Get(ctx context.Context, requesterID string) (*model.CreditAccount, error)
	Upsert(ctx context.Context, account model.CreditAccount) (*model.CreditAccount, error)
	HasSufficientCredit(ctx context.Context, requesterID string) (bool, error)
	Deduct(ctx context.Context, requesterID string) error
	PurchaseCount(ctx context.Context, requesterID string) (int, error)
}

type CreditStore struct {
	db *gorm.DB
}

// Make sure we conform to Credit interface
var _ Credit = (*CreditStore)(nil)

func NewCreditStore(db *gorm.DB) Credit {
	return &CreditStore{db: db}
}

func (s *CreditStore) Get(ctx context.Context, requesterID string) (*model.CreditAccount, error) {
	var account model.CreditAccount
	result := s.getDB(ctx).First(&account, "requester_id = ?", requesterID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying credit account: %w", result.Error)
	}
	return &account, nil
}

func (s *CreditStore) Upsert(ctx context.Context, account model.CreditAccount) (*model.CreditAccount, error) {
	result := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "requester_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "purchase_count"}),
	}).Create(&account)
	if result.Error != nil {
		return nil, fmt.Errorf("upserting credit account: %w", result.Error)
	}
	return &account, nil
}

func (s *CreditStore) HasSufficientCredit(ctx context.Context, requesterID string) (bool, error) {
	account, err := s.Get(ctx, requesterID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.Balance > 0, nil
}

// Deduct decrements one credit. The guarded update keeps the balance from
// going negative when two jobs of the same requester complete at once.
func (s *CreditStore) Deduct(ctx context.Context, requesterID string) error {
	result := s.getDB(ctx).Model(&model.CreditAccount{}).
		Where("requester_id = ? AND balance > 0", requesterID).
		Update("balance", gorm.Expr("balance - 1"))
	if result.Error != nil {
		return fmt.Errorf("deducting credit: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientCredit
	}
	return nil
}

func (s *CreditStore) PurchaseCount(ctx context.Context, requesterID string) (int, error) {
	account, err := s.Get(ctx, requesterID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.PurchaseCount, nil
}

func (s *CreditStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
