// Package registers describes the Futura Modbus register map and converts raw
// register words into typed, scaled values and back.
// Nothing in here performs I/O.
package registers

import (
	"fmt"
	"math"
)

// Space is the Modbus address space a block is read from
type Space byte

const (
	Input Space = iota
	Holding
)

func (s Space) String() string {
	switch s {
	case Input:
		return "input"
	case Holding:
		return "holding"
	}
	return fmt.Sprintf("space(%d)", byte(s))
}

const FUTURA_L = "Futura L"
const FUTURA_M = "Futura M"
const UNKNOWN_MODEL = "Unknown device model"

var deviceModels = map[uint16]string{
	0: FUTURA_L,
	1: FUTURA_L,
	2: FUTURA_M,
}

// U16 returns the register word as an unsigned integer
func U16(word uint16) uint16 {
	return word
}

// I16 reinterprets the register word as a two's complement signed integer
func I16(word uint16) int16 {
	return int16(word)
}

// U32 combines two consecutive words, the first one being the most significant
func U32(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// Scale multiplies raw by factor and rounds the result to the given number of decimals
func Scale(raw float64, factor float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(raw*factor*p) / p
}

// Tenths decodes a value stored as an integer number of tenths
func Tenths(raw int64) float64 {
	return Scale(float64(raw), 0.1, 1)
}

// Milli decodes a value stored in thousandths (battery millivolts)
func Milli(raw int64) float64 {
	return Scale(float64(raw), 0.001, 3)
}

// SecondsToMinutes converts a timer register holding seconds into whole minutes.
// Halves round to even.
func SecondsToMinutes(raw uint16) int64 {
	return int64(math.RoundToEven(float64(raw) / 60))
}

// MinutesToSeconds is the encode direction of SecondsToMinutes
func MinutesToSeconds(minutes float64) uint16 {
	return uint16(math.Round(minutes * 60))
}

// Flag decodes an enable register. Any non-zero value is true.
func Flag(word uint16) bool {
	return word != 0
}

// Model looks up the device model name for a sys_options code.
// Unknown codes decode to UNKNOWN_MODEL.
func Model(code uint16) string {
	if m, ok := deviceModels[code]; ok {
		return m
	}
	return UNKNOWN_MODEL
}

// MAC formats three consecutive words as an Ethernet hardware address
func MAC(words []uint16) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		words[0]>>8, words[0]&0xFF,
		words[1]>>8, words[1]&0xFF,
		words[2]>>8, words[2]&0xFF)
}

// ToFloat converts a decoded scalar value to float64.
// Booleans map to 0/1; strings and channel arrays are not numeric.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
