package model

import (
	"errors"
)

var (
	ErrInvalidWorkItem = errors.New("invalid work item")
	ErrFetchFailed     = errors.New("media fetch failed")
	ErrUpdateFailed    = errors.New("product update failed")
	ErrProductNotFound = errors.New("product not found")
)
