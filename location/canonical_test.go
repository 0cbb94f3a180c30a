package location_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warewise/rule-engine/location"
)

// =============================================================================
// CANONICALIZATION
// =============================================================================

func TestToCanonical_EquivalenceClasses(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"01-01-001A", "01-01-001A"},
		{"01A01A", "01-01-001A"},
		{"1-1-1A", "01-01-001A"},
		{"02-06-3B", "02-06-003B"},
		{"  01-01-001a  ", "01-01-001A"},
		{"12B07C", "01-12-007C"},
		{"USER_WH1_01A01A", "01-01-001A"},
		{"WH2_1-1-1A", "01-01-001A"},
		{"WH2_RECV-1", "RECV-01"},
		{"WH1_ 01A01A", "01-01-001A"},
		{"USER_WH1_ RECV-1", "RECV-01"},
		{"WH2_USER_X_ 1-1-1A", "01-01-001A"},
		{"RECV-1", "RECV-01"},
		{"recv_3", "RECV-03"},
		{"STAGE2", "STAGE-02"},
		{"DOCK-007", "DOCK-07"},
		{"RECEIVING", "RECEIVING"},
		{"AISLE-4", "AISLE-04"},
		{"", ""},
		{"   ", ""},
		{"bad loc!", "BAD LOC!"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, location.ToCanonical(tt.raw))
		})
	}
}

func TestToCanonical_Idempotent(t *testing.T) {
	samples := []string{
		"01-01-001A", "01A01A", "1-1-1A", "100-2-3D", "0001-01-001A",
		"USER_WH1_01A01A", "USER_X_WH2_RECV1", "WH1_", "USER_WH_1_X",
		"RECV", "RECV-1", "RECV-100", "recv_01", "DOCK99999999999999999999",
		"INVALID", "NULL", "ERROR-LOC", "@@@", "x", "", " 02-06-3b ",
		"AISLE-01", "STAGING-3", "SHIPPING", "01-01-001", "01A01",
		"WH1_ 01A01A", "USER_WH1_ RECV-1", "WH2_USER_X_ 1-1-1A", "WH1_  x ",
	}

	for _, s := range samples {
		once := location.ToCanonical(s)
		assert.Equal(t, once, location.ToCanonical(once), "not idempotent for %q", s)
	}
}

func TestValidateFormat_ReportsMatchedFamily(t *testing.T) {
	tests := []struct {
		raw       string
		format    location.Format
		parseable bool
	}{
		{"01-01-001A", location.FormatCanonical, true},
		{"01A01A", location.FormatCompact, true},
		{"1-1-1A", location.FormatLoose, true},
		{"USER_WH1_01A01A", location.FormatPrefixed, true},
		{"WH1_GARBAGE", location.FormatPrefixed, false},
		{"WH1_ 01A01A", location.FormatPrefixed, true},
		{"RECV-1", location.FormatSpecialArea, true},
		{"RECEIVING", location.FormatSpecialArea, true},
		{"NOWHERE", location.FormatUnrecognized, false},
		{"", location.FormatUnrecognized, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res := location.ValidateFormat(tt.raw)
			assert.Equal(t, tt.format, res.Format)
			assert.Equal(t, tt.parseable, res.Parseable)
			assert.Equal(t, location.ToCanonical(tt.raw), res.Canonical)
		})
	}
}

// =============================================================================
// CODE INSPECTION
// =============================================================================

func TestInferType(t *testing.T) {
	assert.Equal(t, location.TypeStorage, location.InferType("01A01A"))
	assert.Equal(t, location.TypeStorage, location.InferType("100-01-001A"))
	assert.Equal(t, location.TypeReceiving, location.InferType("RECV-01"))
	assert.Equal(t, location.TypeReceiving, location.InferType("RECEIVING"))
	assert.Equal(t, location.TypeStaging, location.InferType("STAGE-2"))
	assert.Equal(t, location.TypeDock, location.InferType("DOCK"))
	assert.Equal(t, location.TypeTransitional, location.InferType("AISLE-3"))
	assert.Equal(t, location.TypeUnknown, location.InferType("MEZZANINE"))
}

func TestParseStorage(t *testing.T) {
	slot, ok := location.ParseStorage("2-6-3b")
	require.True(t, ok)
	assert.Equal(t, location.StorageSlot{Aisle: 2, Rack: 6, Position: 3, Level: "B"}, slot)

	_, ok = location.ParseStorage("RECV-01")
	assert.False(t, ok)
}

func TestParseType_Aliases(t *testing.T) {
	assert.Equal(t, location.TypeTransitional, location.ParseType("aisle"))
	assert.Equal(t, location.TypeStaging, location.ParseType("STAGE"))
	assert.Equal(t, location.TypeReceiving, location.ParseType(" receiving "))
	assert.Equal(t, location.TypeUnknown, location.ParseType("attic"))
}

// =============================================================================
// SEARCH VARIANTS
// =============================================================================

func TestSearchVariants_StorageBounded(t *testing.T) {
	variants := location.SearchVariants("01A01A")

	require.NotEmpty(t, variants)
	assert.LessOrEqual(t, len(variants), 5)
	assert.Equal(t, "01-01-001A", variants[0])
	assert.Contains(t, variants, "1-1-1A")
	assert.Contains(t, variants, "01A01A")
	assert.Contains(t, variants, "0101001A")
}

func TestSearchVariants_SpecialArea(t *testing.T) {
	variants := location.SearchVariants("RECV-1")

	assert.Equal(t, []string{"RECV-01", "RECV-1", "RECV01", "RECV_01", "RECV1"}, variants)
}

func TestSearchVariants_CanonicalFirst(t *testing.T) {
	for _, code := range []string{"01-02-003A", "3-4-99c", "STAGE-07", "DOCK"} {
		variants := location.SearchVariants(code)
		require.NotEmpty(t, variants)
		assert.Equal(t, location.ToCanonical(code), variants[0])
	}
}

func TestSearchVariants_EmptyAndUnrecognized(t *testing.T) {
	assert.Empty(t, location.SearchVariants(""))
	assert.Equal(t, []string{"MEZZANINE"}, location.SearchVariants("mezzanine"))
}
