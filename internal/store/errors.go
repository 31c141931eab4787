package store

import "errors"

var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrDuplicateKey       = errors.New("already exists")
	ErrInsufficientCredit = errors.New("insufficient credit")
)
