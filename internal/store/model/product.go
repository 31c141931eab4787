package model

import "time"

// Product is a catalog item a customer can try on.
type Product struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Images    []ProductImage `gorm:"constraint:OnDelete:CASCADE;"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductImage references one source image of a catalog item.
type ProductImage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ProductID string `gorm:"index;not null"`
	ImageRef  string `gorm:"not null"`
	Position  int    `gorm:"not null;default:0"`
}
