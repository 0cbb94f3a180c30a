package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/location"
)

// InventoryRow is one already-tabular inventory row as uploaded.
type InventoryRow struct {
	PalletID      string              `json:"pallet_id"`
	Location      string              `json:"location"`
	LocationType  string              `json:"location_type,omitempty"`
	CreationDate  string              `json:"creation_date,omitempty"`
	ReceiptNumber string              `json:"receipt_number,omitempty"`
	Description   string              `json:"description,omitempty"`
	Quantity      decimal.NullDecimal `json:"quantity"`
}

// InventoryStats counts row-level problems found while converting rows.
// None of them is fatal; the affected rows are skipped by the rules that
// need the missing field.
type InventoryStats struct {
	Rows                int `json:"rows"`
	MissingPalletID     int `json:"missing_pallet_id"`
	MissingLocation     int `json:"missing_location"`
	MissingTimestamp    int `json:"missing_timestamp"`
	MalformedTimestamps int `json:"malformed_timestamps"`
}

// timestampLayouts are tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseTimestamp parses s with the known layouts. Layouts without a zone
// are read in loc (UTC when nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToRecords converts rows into engine records. Timestamps without a zone
// are read in loc.
func ToRecords(rows []InventoryRow, loc *time.Location) ([]engine.InventoryRecord, InventoryStats) {
	stats := InventoryStats{Rows: len(rows)}
	records := make([]engine.InventoryRecord, 0, len(rows))

	for _, r := range rows {
		rec := engine.InventoryRecord{
			PalletID:      strings.TrimSpace(r.PalletID),
			Location:      strings.TrimSpace(r.Location),
			ReceiptNumber: strings.TrimSpace(r.ReceiptNumber),
			Description:   strings.TrimSpace(r.Description),
			Quantity:      r.Quantity,
		}
		if r.LocationType != "" {
			rec.LocationType = location.ParseType(r.LocationType)
		}
		if rec.PalletID == "" {
			stats.MissingPalletID++
		}
		if rec.Location == "" {
			stats.MissingLocation++
		}

		switch created, ok := ParseTimestamp(r.CreationDate, loc); {
		case ok:
			rec.CreatedAt = created
		case strings.TrimSpace(r.CreationDate) == "":
			stats.MissingTimestamp++
		default:
			stats.MalformedTimestamps++
		}
		records = append(records, rec)
	}
	return records, stats
}

// ParseInventoryJSON accepts either a JSON array of rows or an object with
// an "inventory" array.
func ParseInventoryJSON(data []byte) ([]InventoryRow, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Inventory []InventoryRow `json:"inventory"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse inventory JSON: %w", err)
		}
		return wrapped.Inventory, nil
	}

	var rows []InventoryRow
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse inventory JSON: %w", err)
	}
	return rows, nil
}

// LoadInventory reads a JSON inventory file.
func LoadInventory(path string) ([]InventoryRow, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("unsupported inventory format: %q", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return ParseInventoryJSON(data)
}
