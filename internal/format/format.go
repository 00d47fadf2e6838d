// Package format renders route distances and durations for display.
package format

import (
	"fmt"
	"math"
	"strconv"
)

// Unit suffixes and labels.
const (
	unitKilometers = "km"
	unitMeters     = "m"
	labelHours     = "小时"
	labelMinutes   = "分钟"
)

// Distance renders meters as kilometers with up to two decimals when the
// value reaches 1000, otherwise as whole meters.
func Distance(meters float64) string {
	if meters >= 1000 {
		km := math.Round(meters/1000*100) / 100
		return strconv.FormatFloat(km, 'f', -1, 64) + " " + unitKilometers
	}
	return strconv.FormatFloat(math.Round(meters), 'f', 0, 64) + " " + unitMeters
}

// Duration renders seconds as hours and minutes. Hours are omitted when
// zero; leftover seconds are dropped.
func Duration(seconds float64) string {
	total := int64(0)
	if seconds > 0 && !math.IsInf(seconds, 1) {
		total = int64(seconds)
	}

	hours := total / 3600
	minutes := (total % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%d %s %d %s", hours, labelHours, minutes, labelMinutes)
	}
	return fmt.Sprintf("%d %s", minutes, labelMinutes)
}
