// Package store provides durable local store implementations for the
// catalog state blob. All implementations hold one serialized snapshot
// under a single fixed slot and overwrite it whole on every save.
package store

import (
	"encoding/json"
	"fmt"

	"product-catalog/internal/catalog"
)

// StateSlot is the fixed name of the single storage slot.
const StateSlot = "products-storage"

func encodeState(snap catalog.StateSnapshot) ([]byte, error) {
	data, err := json.Marshal(catalog.PersistedState{State: snap})
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (catalog.StateSnapshot, error) {
	var blob catalog.PersistedState
	if err := json.Unmarshal(data, &blob); err != nil {
		return catalog.StateSnapshot{}, fmt.Errorf("%w: %v", catalog.ErrCorruptState, err)
	}
	return blob.State, nil
}
