package model

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// WorkItem is one unit of requested work: FetchMedia, UploadMedia or UpdateProduct.
type WorkItem interface {
	Product() int64
	Kind() string
	workItem()
}

type FetchMedia struct {
	ProductID int64  `validate:"gt=0"`
	LocalRef  string `validate:"required"`
}

type UploadMedia struct {
	ProductID int64       `validate:"gt=0"`
	LocalRef  string      `validate:"required"`
	Media     MediaHandle `validate:"-"`
}

type UpdateProduct struct {
	ProductID int64         `validate:"gt=0"`
	Images    []MediaHandle
}

func (i FetchMedia) Product() int64    { return i.ProductID }
func (i UploadMedia) Product() int64   { return i.ProductID }
func (i UpdateProduct) Product() int64 { return i.ProductID }

func (FetchMedia) Kind() string    { return "fetch" }
func (UploadMedia) Kind() string   { return "upload" }
func (UpdateProduct) Kind() string { return "update" }

func (FetchMedia) workItem()    {}
func (UploadMedia) workItem()   {}
func (UpdateProduct) workItem() {}

// IsMediaWork reports whether the item still contributes to the uploads of its product.
func IsMediaWork(item WorkItem) bool {
	switch item.(type) {
	case FetchMedia, UploadMedia:
		return true
	default:
		return false
	}
}

var validate = validator.New()

// Validate checks the field constraints of a work item.
func Validate(item WorkItem) error {
	if item == nil {
		return fmt.Errorf("%w: nil", ErrInvalidWorkItem)
	}
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidWorkItem, item.Kind(), err)
	}
	return nil
}

// Attrs returns log attributes identifying the item.
func Attrs(item WorkItem) []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("product_id", item.Product()),
		slog.String("kind", item.Kind()),
	}
	switch i := item.(type) {
	case FetchMedia:
		attrs = append(attrs, slog.String("local_ref", i.LocalRef))
	case UploadMedia:
		attrs = append(attrs, slog.String("local_ref", i.LocalRef))
	case UpdateProduct:
		attrs = append(attrs, slog.Int("images", len(i.Images)))
	}
	return attrs
}
