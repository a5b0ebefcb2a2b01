package runtime

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Units is the unit system distances, speeds and angles arrive in.
type Units string

const (
	// UnitsMillimeters: millimeters, millimeters/second, degrees, degrees/second.
	UnitsMillimeters Units = "millimeters"
	// UnitsMeters: meters, meters/second, radians, radians/second.
	UnitsMeters Units = "meters"
)

// ParseUnits validates a unit system name. Empty means millimeters.
func ParseUnits(s string) (Units, error) {
	switch Units(strings.ToLower(s)) {
	case "", UnitsMillimeters, "mm":
		return UnitsMillimeters, nil
	case UnitsMeters, "m":
		return UnitsMeters, nil
	}
	return "", fmt.Errorf("unknown unit system %q", s)
}

// Distance converts a distance to millimeters.
func (u Units) Distance(v float64) float64 {
	if u == UnitsMeters {
		return v * 1000
	}
	return v
}

// Speed converts a linear speed to millimeters per second.
func (u Units) Speed(v float64) float64 { return u.Distance(v) }

// Angle converts an angle to degrees.
func (u Units) Angle(v float64) float64 {
	if u == UnitsMeters {
		return v * 180 / math.Pi
	}
	return v
}

// AngularSpeed converts an angular speed to degrees per second.
func (u Units) AngularSpeed(v float64) float64 { return u.Angle(v) }

// decodeParams checks that every required key is present and decodes params
// into out with weakly typed input, so "100" and 100 are both accepted.
func decodeParams(params map[string]any, out any, required ...string) error {
	var missing []string
	for _, k := range required {
		if v, ok := params[k]; !ok || v == nil || v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.Rejectf(domain.CodeMissingParameter, "missing parameter(s): %s", strings.Join(missing, ", "))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "param",
	})
	if err != nil {
		return fmt.Errorf("failed to create parameter decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return domain.Rejectf(domain.CodeInvalidParameter, "%s", unwrapDecodeError(err))
	}
	return nil
}

func unwrapDecodeError(err error) string {
	if me, ok := err.(*mapstructure.Error); ok && len(me.Errors) > 0 {
		return strings.Join(me.Errors, "; ")
	}
	return err.Error()
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.Rejectf(domain.CodeInvalidParameter, "%s must be a finite number", name)
	}
	return nil
}

func within(name string, v, lo, hi float64) error {
	if err := finite(name, v); err != nil {
		return err
	}
	if v < lo || v > hi {
		return domain.Rejectf(domain.CodeInvalidParameter, "%s %g out of range [%g, %g]", name, v, lo, hi)
	}
	return nil
}

func positive(name string, v float64) error {
	if err := finite(name, v); err != nil {
		return err
	}
	if v <= 0 {
		return domain.Rejectf(domain.CodeInvalidParameter, "%s must be positive, got %g", name, v)
	}
	return nil
}
