package mib

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// OID is a sequence of arc values representing an SNMP Object Identifier.
// Ordering is lexicographic by arc value, never by the dotted string.
type OID []uint32

// ParseOID parses an OID from a dotted string (e.g., "1.3.6.1.4.1").
// A single leading dot is accepted.
func ParseOID(s string) (OID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, fmt.Errorf("empty OID")
	}

	var arcs OID
	var current uint64
	var hasDigit bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			current = current*10 + uint64(c-'0')
			if current > 0xFFFFFFFF {
				return nil, fmt.Errorf("arc overflows uint32 in OID: %s", s)
			}
			hasDigit = true
		case c == '.':
			if !hasDigit {
				return nil, fmt.Errorf("empty arc in OID: %s", s)
			}
			arcs = append(arcs, uint32(current))
			current = 0
			hasDigit = false
		default:
			return nil, fmt.Errorf("invalid character in OID: %c", c)
		}
	}
	if !hasDigit {
		return nil, fmt.Errorf("trailing dot in OID: %s", s)
	}
	return append(arcs, uint32(current)), nil
}

// MustParseOID is ParseOID for compiled-in constants.
func MustParseOID(s string) OID {
	o, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String returns the dotted string representation (e.g., "1.3.6.1.4.1").
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(o[0]), 10))
	for _, arc := range o[1:] {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(arc), 10))
	}
	return b.String()
}

// Compare returns -1 if o < other, 0 if equal, 1 if o > other.
func (o OID) Compare(other OID) int {
	return slices.Compare(o, other)
}

// Equal returns true if the OIDs are identical.
func (o OID) Equal(other OID) bool {
	return slices.Equal(o, other)
}

// HasPrefix returns true if this OID starts with the given prefix.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	return slices.Equal(o[:len(prefix)], prefix)
}

// Clone returns an independent copy.
func (o OID) Clone() OID {
	return slices.Clone(o)
}
