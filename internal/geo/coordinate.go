// Package geo validates and normalizes the coordinates exchanged with the
// host framework and the directions provider.
package geo

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Precision is the number of decimal places coordinates are rounded to.
const Precision = 6

// Axis bounds in decimal degrees.
const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
)

// Coordinate errors.
var (
	// ErrInvalidCoordinate indicates a value that is malformed or out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrNotANumber indicates a value that cannot be parsed as a decimal number.
	ErrNotANumber = errors.New("not a decimal number")
)

var (
	longitudePattern = regexp.MustCompile(`^\s*([-+]?\d{1,3}(?:\.\d{1,6})?)\s*$`)
	latitudePattern  = regexp.MustCompile(`^\s*([-+]?\d{1,2}(?:\.\d{1,6})?)\s*$`)
	decimalPattern   = regexp.MustCompile(`^[-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?$`)
)

// ValidateLongitude reports whether s is a longitude with at most six
// fractional digits inside [-180, 180].
func ValidateLongitude(s string) bool {
	return validate(s, longitudePattern, MinLongitude, MaxLongitude)
}

// ValidateLatitude reports whether s is a latitude with at most six
// fractional digits inside [-90, 90].
func ValidateLatitude(s string) bool {
	return validate(s, latitudePattern, MinLatitude, MaxLatitude)
}

func validate(s string, pattern *regexp.Regexp, lo, hi float64) bool {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return false
	}
	return v >= lo && v <= hi
}

// ConvertAndRound parses s as a decimal number and rounds it to six decimal
// places, halves away from zero. The result carries no trailing zeros, so
// applying it twice yields the same string.
func ConvertAndRound(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !decimalPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrNotANumber, s)
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotANumber, s)
	}

	out := r.FloatString(Precision)
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")
	if out == "-0" || out == "" {
		out = "0"
	}
	return out, nil
}

// Coordinate is a validated point, longitude first.
type Coordinate struct {
	lng string
	lat string
}

// NewCoordinate rounds and validates a longitude/latitude pair given as
// strings.
func NewCoordinate(lng, lat string) (Coordinate, error) {
	rlng, err := ConvertAndRound(lng)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude: %w", ErrInvalidCoordinate, err)
	}
	rlat, err := ConvertAndRound(lat)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude: %w", ErrInvalidCoordinate, err)
	}

	if !ValidateLongitude(rlng) {
		return Coordinate{}, fmt.Errorf("%w: longitude %s out of range", ErrInvalidCoordinate, rlng)
	}
	if !ValidateLatitude(rlat) {
		return Coordinate{}, fmt.Errorf("%w: latitude %s out of range", ErrInvalidCoordinate, rlat)
	}

	return Coordinate{lng: rlng, lat: rlat}, nil
}

// FromFloats is NewCoordinate for numeric attribute values.
func FromFloats(lng, lat float64) (Coordinate, error) {
	return NewCoordinate(
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
	)
}

// FromAttribute converts a host attribute value (number or numeric string)
// to its decimal string form.
func FromAttribute(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case string:
		return t, t != ""
	default:
		return "", false
	}
}

// Longitude returns the rounded longitude.
func (c Coordinate) Longitude() string { return c.lng }

// Latitude returns the rounded latitude.
func (c Coordinate) Latitude() string { return c.lat }

// IsZero reports whether c was never set.
func (c Coordinate) IsZero() bool { return c.lng == "" && c.lat == "" }

// String renders the pair as "lng,lat", the order the directions API expects.
func (c Coordinate) String() string {
	return c.lng + "," + c.lat
}
