package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", id)}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(message string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: %s", message)}
}
