package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("product not found")

	// ErrNoState means the durable local store slot has never been written.
	ErrNoState = errors.New("no persisted state")
	// ErrCorruptState means the slot exists but its blob cannot be decoded.
	ErrCorruptState = errors.New("corrupt persisted state")
)

const (
	EventsQueue  = "catalog.events"
	EventCreated = "product_created"
	EventUpdated = "product_updated"
	EventDeleted = "product_deleted"
)

// LocalIDFloor is the first ID handed out to locally created products.
// IDs below it belong to products ingested from the remote catalog source.
const LocalIDFloor int64 = 1000

type Rating struct {
	Rate  float64 `json:"rate" example:"4.5"`
	Count int64   `json:"count" example:"120"`
}

type Product struct {
	ID          int64   `json:"id" example:"1000"`
	Title       string  `json:"title" example:"Wireless Mouse"`
	Price       float64 `json:"price" example:"29.99"`
	Description string  `json:"description" example:"Compact wireless mouse with USB receiver"`
	Category    string  `json:"category" example:"electronics"`
	Image       string  `json:"image" example:"https://example.com/mouse.jpg"`
	Rating      Rating  `json:"rating"`
}

// RemoteOrigin reports whether the product was ingested from the remote
// catalog source rather than created locally.
func (p Product) RemoteOrigin() bool {
	return p.ID < LocalIDFloor
}

// ProductFields is the pre-validated field bundle accepted by Create.
// Validation happens at the form boundary, not in the engine.
type ProductFields struct {
	Title       string
	Price       float64
	Description string
	Category    string
	Image       string
}

// ProductPatch carries a partial update. Nil fields are left untouched;
// ID and Rating are not patchable.
type ProductPatch struct {
	Title       *string
	Price       *float64
	Description *string
	Category    *string
	Image       *string
}

type ProductEvent struct {
	EventType string    `json:"event_type"`
	ProductID int64     `json:"product_id"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StateSnapshot is the durable portion of the engine state. Favorites are
// kept sorted so consecutive snapshots of the same state serialize identically.
type StateSnapshot struct {
	Products         []Product `json:"products"`
	Favorites        []int64   `json:"favorites"`
	HasLoadedFromAPI bool      `json:"hasLoadedFromAPI"`
}

// PersistedState is the envelope written to the durable local store. The
// shape mirrors the blob the original web client kept under its single
// storage slot.
type PersistedState struct {
	State StateSnapshot `json:"state"`
}
