package messaging

import (
	"context"

	"product-catalog/internal/catalog"
)

// NopPublisher is wired when no message broker is configured. Catalog
// mutations then carry no event side effects.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, catalog.ProductEvent) error {
	return nil
}
