package model

import "time"

// CreditAccount tracks the generation credits and purchase history of a
// requester. PurchaseCount feeds the queue priority tiers.
type CreditAccount struct {
	RequesterID   string `gorm:"primaryKey"`
	Balance       int    `gorm:"not null;default:0"`
	PurchaseCount int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
