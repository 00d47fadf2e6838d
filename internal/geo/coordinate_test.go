package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tohomedistance/tohomedistance/internal/geo"
)

func TestValidateLongitude(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"116.397128", true},
		{"0", true},
		{"-180", true},
		{"180.000000", true},
		{"+12.5", true},
		{"  116.4  ", true},
		{"200.0", false},
		{"-180.000001", false},
		{"116.3971281", false},
		{"1234", false},
		{"abc", false},
		{"", false},
		{"116,39", false},
		{"1e2", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, geo.ValidateLongitude(tt.in))
		})
	}
}

func TestValidateLatitude(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"39.9", true},
		{"-90", true},
		{"90.0", true},
		{"39.916527", true},
		{"-91.0", false},
		{"90.000001", false},
		{"116.4", false},
		{"north", false},
		{".5", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, geo.ValidateLatitude(tt.in))
		})
	}
}

func TestConvertAndRound(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"116.3971275", "116.397128"},
		{"-116.3971275", "-116.397128"},
		{"39.9", "39.9"},
		{"39.900000", "39.9"},
		{"116", "116"},
		{"0.0000004", "0"},
		{"-0.0000004", "0"},
		{" 12.1234567 ", "12.123457"},
		{"1.5e1", "15"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := geo.ConvertAndRound(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertAndRound_Idempotent(t *testing.T) {
	once, err := geo.ConvertAndRound("116.3971275")
	require.NoError(t, err)

	twice, err := geo.ConvertAndRound(once)
	require.NoError(t, err)

	assert.Equal(t, "116.397128", once)
	assert.Equal(t, once, twice)
}

func TestConvertAndRound_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1/3", "0x10", "12.3.4", "NaN", "Inf"} {
		_, err := geo.ConvertAndRound(in)
		assert.ErrorIs(t, err, geo.ErrNotANumber, "input %q", in)
	}
}

func TestNewCoordinate(t *testing.T) {
	c, err := geo.NewCoordinate("116.3971275", "39.916527")
	require.NoError(t, err)

	assert.Equal(t, "116.397128", c.Longitude())
	assert.Equal(t, "39.916527", c.Latitude())
	assert.Equal(t, "116.397128,39.916527", c.String())
	assert.False(t, c.IsZero())
}

func TestNewCoordinate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		lng  string
		lat  string
	}{
		{"longitude out of range", "200.0", "39.9"},
		{"latitude out of range", "116.4", "-91.0"},
		{"longitude not a number", "east", "39.9"},
		{"latitude empty", "116.4", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := geo.NewCoordinate(tt.lng, tt.lat)
			assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
		})
	}
}

func TestFromFloats(t *testing.T) {
	c, err := geo.FromFloats(116.407417, 39.90403)
	require.NoError(t, err)
	assert.Equal(t, "116.407417,39.90403", c.String())

	_, err = geo.FromFloats(181, 0)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestFromAttribute(t *testing.T) {
	s, ok := geo.FromAttribute(116.397128)
	assert.True(t, ok)
	assert.Equal(t, "116.397128", s)

	s, ok = geo.FromAttribute("39.9")
	assert.True(t, ok)
	assert.Equal(t, "39.9", s)

	_, ok = geo.FromAttribute(nil)
	assert.False(t, ok)

	_, ok = geo.FromAttribute("")
	assert.False(t, ok)
}
