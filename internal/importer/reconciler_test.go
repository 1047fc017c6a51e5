package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		mode     MatchMode
		existing string
		incoming string
		want     bool
	}{
		{MatchContains, "Nguyen Van An", "van an", true},
		{MatchContains, "An", "Nguyen Van An", false},
		{MatchContains, "Anything", "", false},
		{MatchExact, "ACME Corp", "acme corp", true},
		{MatchExact, "ACME Corp.", "acme corp", false},
		{MatchFuzzy, "Nguyễn Văn An", "nguyen an", true},
		{MatchFuzzy, "Tran Binh", "nguyen", false},
	}

	for _, tt := range tests {
		got := Matches(tt.mode, tt.existing, tt.incoming)
		assert.Equal(t, tt.want, got, "%s: %q vs %q", tt.mode, tt.existing, tt.incoming)
	}
}

func TestSelectMatch(t *testing.T) {
	candidates := []ExistingEntity{
		{ID: 1, Name: "Acme Corporation"},
		{ID: 2, Name: "acme"},
		{ID: 3, Name: "Acme Ltd"},
	}

	got, ok := SelectMatch(MatchContains, "Acme", candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(2), got.ID, "exact match wins")

	got, ok = SelectMatch(MatchContains, "Acme L", candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(3), got.ID)

	_, ok = SelectMatch(MatchExact, "Globex", candidates)
	assert.False(t, ok)
}

func TestSelectMatch_ClosestThenLowestID(t *testing.T) {
	candidates := []ExistingEntity{
		{ID: 7, Name: "Bolt M3 long"},
		{ID: 4, Name: "Bolt M3 x"},
		{ID: 5, Name: "Bolt M3 y"},
	}

	got, ok := SelectMatch(MatchContains, "Bolt M3", candidates)
	assert.True(t, ok)
	assert.Equal(t, int64(4), got.ID)
}

func TestBatchNames_Distinct(t *testing.T) {
	batch := []ImportRow{
		&CustomerImportRow{Name: "An"},
		&CustomerImportRow{Name: "Binh"},
		&CustomerImportRow{Name: "An"},
	}
	assert.Equal(t, []string{"An", "Binh"}, batchNames(batch))
}
