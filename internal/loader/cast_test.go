package loader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careworks-labs/nhstage/internal/registry"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CMS Certification Number (CCN)", "cms_certification_number_ccn"},
		{"Penalty Date", "penalty_date"},
		{"Fine Amount", "fine_amount"},
		{"Hrs_RN", "hrs_rn"},
		{"  State ", "state"},
		{"Payment Denial Length in Days", "payment_denial_length_in_days"},
		{"already_normal", "already_normal"},
		{"Weird--Name__Here", "weird_name_here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), "input %q", tt.in)
	}
}

func TestCast_String(t *testing.T) {
	col := registry.Column{Name: "state", Type: registry.TypeString, Nullable: true}

	v, err := Cast("  TX ", col)
	require.NoError(t, err)
	assert.Equal(t, "TX", v)

	v, err = Cast("", col)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCast_EmptyNonNullable(t *testing.T) {
	col := registry.Column{Name: "ccn", Type: registry.TypeString}

	_, err := Cast("", col)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-nullable")

	// Whitespace-only counts as empty.
	_, err = Cast("   ", col)
	require.Error(t, err)
}

func TestCast_Date(t *testing.T) {
	col := registry.Column{Name: "penalty_date", Type: registry.TypeDate}

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023-01-05", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"01/05/2023", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"1/5/2023", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"20230105", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		v, err := Cast(tt.in, col)
		require.NoError(t, err, "input %q", tt.in)
		assert.True(t, tt.want.Equal(v.(time.Time)), "input %q: got %v", tt.in, v)
	}

	_, err := Cast("not-a-date", col)
	require.Error(t, err)

	_, err = Cast("2023-13-45", col)
	require.Error(t, err)
}

func TestCast_Numeric(t *testing.T) {
	col := registry.Column{Name: "fine_amount", Type: registry.TypeNumeric, Nullable: true}

	tests := []struct {
		in   string
		want float64
	}{
		{"3250.5", 3250.5},
		{"$3,250.50", 3250.5},
		{"0", 0},
		{"-12.25", -12.25},
	}
	for _, tt := range tests {
		v, err := Cast(tt.in, col)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, v)
	}

	_, err := Cast("N/A", col)
	require.Error(t, err)
}

func TestCast_Int(t *testing.T) {
	col := registry.Column{Name: "denial_days", Type: registry.TypeInt, Nullable: true}

	tests := []struct {
		in   string
		want int64
	}{
		{"30", 30},
		{"30.0", 30},
		{"1,200", 1200},
		{"-4", -4},
	}
	for _, tt := range tests {
		v, err := Cast(tt.in, col)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, v)
	}

	_, err := Cast("30.5", col)
	require.Error(t, err, "fractional value must not cast to int")

	_, err = Cast("thirty", col)
	require.Error(t, err)
}
