package parse

import (
	"regexp"
	"strings"

	"gate-sync-backend/internal/upstream"
)

var (
	plateSepRe    = regexp.MustCompile(`[\s\-_.]+`)
	plateValidRe  = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	collapsedWSRe = regexp.MustCompile(`\s+`)
)

// Keys checked in order when extracting a label from the free-form entry
// data map.
var (
	plateKeys   = []string{"license_plate", "plate", "vehicle_plate", "truck_number"}
	visitorKeys = []string{"visitor_name", "name", "company"}
)

// NormalizePlate uppercases a license plate and strips separators so that
// "ab-123 cd" and "AB123CD" index identically. Returns "" when the result is
// not a plausible plate.
func NormalizePlate(raw string) string {
	s := plateSepRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
	if !plateValidRe.MatchString(s) {
		return ""
	}
	return s
}

// EntryLabel extracts a human-readable label from an entry's free-form data
// map: a normalized plate for vehicles and trucks, a cleaned-up name for
// visitors. Returns "" when nothing usable is present.
func EntryLabel(entryType string, data map[string]any) string {
	if len(data) == 0 {
		return ""
	}

	switch entryType {
	case upstream.EntryTypeVehicle, upstream.EntryTypeTruck:
		for _, key := range plateKeys {
			if raw, ok := stringField(data, key); ok {
				if plate := NormalizePlate(raw); plate != "" {
					return plate
				}
			}
		}
	case upstream.EntryTypeVisitor:
		for _, key := range visitorKeys {
			if raw, ok := stringField(data, key); ok {
				name := collapsedWSRe.ReplaceAllString(strings.TrimSpace(raw), " ")
				if name != "" {
					return name
				}
			}
		}
	}
	return ""
}

func stringField(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
