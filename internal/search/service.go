package search

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an item slug does not exist.
var ErrNotFound = errors.New("item not found")

// Service is the catalogue backend consumed by the controller.
type Service interface {
	Search(ctx context.Context, req Request) (*Page, error)
	Item(ctx context.Context, slug string) (*Item, error)
}
