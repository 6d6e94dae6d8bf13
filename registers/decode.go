package registers

import (
	"errors"
	"fmt"
)

// Kind selects how a field's words are interpreted
type Kind byte

const (
	KindU16     Kind = iota // unsigned 16 bit
	KindI16                 // signed 16 bit
	KindU32                 // two words, high word first
	KindFlag                // non-zero is true
	KindModel               // sys_options model code
	KindMinutes             // seconds register presented in minutes
	KindMAC                 // three words, Ethernet address
)

// width returns the number of words a field of this kind occupies
func (k Kind) width() uint16 {
	switch k {
	case KindU32:
		return 2
	case KindMAC:
		return 3
	}
	return 1
}

// WriteRule marks a field as writable with a single register write.
// A zero Min and Max leaves the value unchecked.
type WriteRule struct {
	Address uint16
	Min     float64
	Max     float64
}

// Field describes one value decoded from a block or a channel record
type Field struct {
	Key      string
	Offset   uint16  // word offset from the start of the block or record
	Kind     Kind
	Scale    float64 // zero keeps the raw integer
	Decimals int
	Write    *WriteRule
}

// Channel is a fixed-size array of identically laid out records
type Channel struct {
	Key    string
	Offset uint16 // offset of the first record inside the block
	Count  int
	Stride uint16 // words per record, padding included
	Fields []Field
}

// Block is one contiguous register read
type Block struct {
	Name     string
	Space    Space
	Address  uint16
	Quantity uint16
	Fields   []Field
	Channels []Channel
}

// Snapshot maps field keys to decoded values: float64, int64, bool, string or []Record
type Snapshot map[string]interface{}

// Record is one entry of a channel array
type Record map[string]interface{}

const INDEX = "index"

var ErrShortBlock = errors.New("Register block length does not match the requested quantity")

// Get returns the value stored under key
func (s Snapshot) Get(key string) (interface{}, bool) {
	v, ok := s[key]
	return v, ok
}

func (s Snapshot) Merge(other Snapshot) {
	for k, v := range other {
		s[k] = v
	}
}

func (f *Field) decode(words []uint16) interface{} {
	w := words[f.Offset]
	switch f.Kind {
	case KindI16:
		return f.scaled(int64(I16(w)))
	case KindU32:
		return f.scaled(int64(U32(w, words[f.Offset+1])))
	case KindFlag:
		return Flag(w)
	case KindModel:
		return Model(w)
	case KindMinutes:
		return SecondsToMinutes(w)
	case KindMAC:
		return MAC(words[f.Offset : f.Offset+3])
	}
	return f.scaled(int64(U16(w)))
}

func (f *Field) scaled(raw int64) interface{} {
	if f.Scale == 0 {
		return raw
	}
	return Scale(float64(raw), f.Scale, f.Decimals)
}

// end returns the offset just past the last word of the field
func (f *Field) end() uint16 {
	return f.Offset + f.Kind.width()
}

func (c *Channel) decode(words []uint16) []Record {
	records := make([]Record, 0, c.Count)
	for i := 0; i < c.Count; i++ {
		base := c.Offset + uint16(i)*c.Stride
		rec := Record{INDEX: int64(i)}
		end := base + c.Stride
		if int(end) > len(words) {
			// the last record of a packed array may omit its padding
			end = uint16(len(words))
		}
		raw := words[base:end]
		for n := range c.Fields {
			f := &c.Fields[n]
			rec[f.Key] = f.decode(raw)
		}
		records = append(records, rec)
	}
	return records
}

// Decode converts the words read for block b into a partial snapshot.
// The whole block is rejected when the number of words does not match its quantity.
func Decode(b *Block, words []uint16) (Snapshot, error) {
	if len(words) != int(b.Quantity) {
		return nil, fmt.Errorf("%s block: got %d words, want %d: %w", b.Name, len(words), b.Quantity, ErrShortBlock)
	}
	s := make(Snapshot, len(b.Fields)+len(b.Channels))
	for n := range b.Fields {
		f := &b.Fields[n]
		s[f.Key] = f.decode(words)
	}
	for n := range b.Channels {
		c := &b.Channels[n]
		s[c.Key] = c.decode(words)
	}
	return s, nil
}
