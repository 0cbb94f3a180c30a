package engine

import "github.com/warewise/rule-engine/location"

// Category is the business tier of a location.
type Category string

const (
	// CategoryStorage covers individually addressed slots. Slots are
	// exclusive, so every misplaced pallet is actionable on its own.
	CategoryStorage Category = "STORAGE"

	// CategorySpecial covers shared buffers (receiving, staging, docks,
	// aisles) where only the aggregate condition is actionable.
	CategorySpecial Category = "SPECIAL"
)

// Classify assigns a category and default alert priority to a location.
// A declared STORAGE type, or a storage-shaped code with no declared type,
// is STORAGE/CRITICAL. Everything else is SPECIAL/WARNING.
func Classify(d location.Descriptor) (Category, Priority) {
	switch {
	case d.Type == location.TypeStorage:
		return CategoryStorage, PriorityCritical
	case !d.Type.IsKnown() && location.IsStorageCode(d.Code):
		return CategoryStorage, PriorityCritical
	default:
		return CategorySpecial, PriorityWarning
	}
}
