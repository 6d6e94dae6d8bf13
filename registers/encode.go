package registers

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnknownField = errors.New("Unknown field")
var ErrReadOnly = errors.New("Field is not writable")
var ErrOutOfRange = errors.New("Value out of range")

// Lookup finds the descriptor of a top level field by key in the full register map
func Lookup(key string) (*Field, bool) {
	var found *Field
	for _, blocks := range [][]Block{Active, Extended} {
		for b := range blocks {
			for n := range blocks[b].Fields {
				f := &blocks[b].Fields[n]
				if f.Key != key {
					continue
				}
				if f.Write != nil {
					return f, true
				}
				if found == nil {
					found = f
				}
			}
		}
	}
	return found, found != nil
}

// Writable lists the keys of all fields that accept single register writes
func Writable() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, blocks := range [][]Block{Active, Extended} {
		for _, b := range blocks {
			for _, f := range b.Fields {
				if f.Write != nil && !seen[f.Key] {
					seen[f.Key] = true
					keys = append(keys, f.Key)
				}
			}
		}
	}
	return keys
}

// Encode converts a value in display units into the holding register address and word to write
func Encode(key string, value float64) (address uint16, word uint16, err error) {
	f, ok := Lookup(key)
	if !ok {
		return 0, 0, fmt.Errorf("%s: %w", key, ErrUnknownField)
	}
	if f.Write == nil {
		return 0, 0, fmt.Errorf("%s: %w", key, ErrReadOnly)
	}
	w := f.Write
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, 0, fmt.Errorf("%s: %g: %w", key, value, ErrOutOfRange)
	}
	if (w.Min != 0 || w.Max != 0) && (value < w.Min || value > w.Max) {
		return 0, 0, fmt.Errorf("%s: %g not in [%g, %g]: %w", key, value, w.Min, w.Max, ErrOutOfRange)
	}

	var scaled float64
	switch {
	case f.Kind == KindMinutes:
		scaled = math.Round(value * 60)
	case f.Kind == KindFlag:
		if value != 0 {
			scaled = 1
		}
	case f.Scale != 0:
		scaled = math.Round(value / f.Scale)
	default:
		scaled = math.Round(value)
	}

	// the scaled value must fit the register before conversion
	lo, hi := 0.0, float64(math.MaxUint16)
	if f.Kind == KindI16 {
		lo, hi = math.MinInt16, math.MaxInt16
	}
	if scaled < lo || scaled > hi {
		return 0, 0, fmt.Errorf("%s: %g does not fit the register: %w", key, value, ErrOutOfRange)
	}
	if f.Kind == KindI16 {
		return w.Address, uint16(int16(scaled)), nil
	}
	return w.Address, uint16(scaled), nil
}
