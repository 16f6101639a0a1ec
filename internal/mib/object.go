package mib

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Kind is the declared type of a managed object. It never changes for an OID.
type Kind int

const (
	KindText Kind = iota + 1
	KindInteger
	KindTimestamp
)

// TimestampLayout formats event times as YYYY-MM-DD,HH:MM:SS.
const TimestampLayout = "2006-01-02,15:04:05"

const (
	// MaxTextLength bounds writable text values.
	MaxTextLength = 64
	MinInteger    = 0
	MaxInteger    = 100
)

var (
	ErrNotFound    = errors.New("no such object")
	ErrNotWritable = errors.New("object not writable")
	ErrWrongType   = errors.New("wrong value type")
	ErrWrongValue  = errors.New("value out of range")
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindInteger:
		return "Integer"
	case KindTimestamp:
		return "Timestamp"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a tagged scalar. Only the field selected by Kind is meaningful.
type Value struct {
	Kind Kind
	Text string
	Int  int32
}

// TextValue builds a Text value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// IntegerValue builds an Integer value.
func IntegerValue(n int32) Value { return Value{Kind: KindInteger, Int: n} }

// TimestampValue builds a Timestamp value; an empty string means "never".
func TimestampValue(s string) Value { return Value{Kind: KindTimestamp, Text: s} }

// FormatTimestamp renders t in the event-time layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

func (v Value) String() string {
	if v.Kind == KindInteger {
		return fmt.Sprintf("%d", v.Int)
	}
	return v.Text
}

// Object is a single typed, addressable value in the store.
type Object struct {
	OID      OID
	Name     string
	Kind     Kind
	Value    Value
	Writable bool
}

// Clone returns a copy that shares no memory with o.
func (o Object) Clone() Object {
	o.OID = o.OID.Clone()
	return o
}

// Check validates v against the object's declared kind and bounds without
// looking at access rights.
func (o Object) Check(v Value) error {
	if v.Kind != o.Kind {
		return fmt.Errorf("%s expects %s, got %s: %w", o.Name, o.Kind, v.Kind, ErrWrongType)
	}
	switch o.Kind {
	case KindText:
		if !utf8.ValidString(v.Text) {
			return fmt.Errorf("%s is not valid UTF-8: %w", o.Name, ErrWrongValue)
		}
		if n := utf8.RuneCountInString(v.Text); n > MaxTextLength {
			return fmt.Errorf("%s length %d exceeds %d: %w", o.Name, n, MaxTextLength, ErrWrongValue)
		}
	case KindInteger:
		if v.Int < MinInteger || v.Int > MaxInteger {
			return fmt.Errorf("%s value %d outside [%d, %d]: %w", o.Name, v.Int, MinInteger, MaxInteger, ErrWrongValue)
		}
	}
	return nil
}
