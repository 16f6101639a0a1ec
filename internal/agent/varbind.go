package agent

import "mibagent/internal/mib"

// Marker flags a result position that carries no value.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerNoSuchObject
	MarkerEndOfView
)

// VarBind is one result position. Value and Name are meaningful only when
// Marker is MarkerNone.
type VarBind struct {
	OID    mib.OID
	Name   string
	Value  mib.Value
	Marker Marker
}

func bindObject(obj mib.Object) VarBind {
	return VarBind{OID: obj.OID, Name: obj.Name, Value: obj.Value}
}

// Syntax is the wire type of a value supplied in a write.
type Syntax int

const (
	SyntaxOther Syntax = iota
	SyntaxInteger
	SyntaxOctetString
)

// Input is one (OID, new value) pair of a write request, still in wire form.
type Input struct {
	OID     mib.OID
	Syntax  Syntax
	Integer int64
	Octets  []byte
}

// IntegerInput builds an Integer assignment.
func IntegerInput(oid mib.OID, n int64) Input {
	return Input{OID: oid, Syntax: SyntaxInteger, Integer: n}
}

// OctetsInput builds an OctetString assignment.
func OctetsInput(oid mib.OID, b []byte) Input {
	return Input{OID: oid, Syntax: SyntaxOctetString, Octets: b}
}

// acceptsSyntax reports whether kind can hold a value of wire type s.
func acceptsSyntax(kind mib.Kind, s Syntax) bool {
	switch kind {
	case mib.KindInteger:
		return s == SyntaxInteger
	case mib.KindText, mib.KindTimestamp:
		return s == SyntaxOctetString
	}
	return false
}
