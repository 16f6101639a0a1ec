package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"mibagent/internal/mib"
)

// Type tags written to the snapshot file.
const (
	TagDisplayString = "DisplayString"
	TagInteger32     = "Integer32"
	TagDateAndTime   = "DateAndTime"
)

// ErrCorrupt marks a snapshot that cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

func tagFor(k mib.Kind) (string, error) {
	switch k {
	case mib.KindText:
		return TagDisplayString, nil
	case mib.KindInteger:
		return TagInteger32, nil
	case mib.KindTimestamp:
		return TagDateAndTime, nil
	}
	return "", fmt.Errorf("no type tag for %s", k)
}

// Encode renders objects as a JSON document mapping each OID to a
// [type-tag, value] pair.
func Encode(objects []mib.Object) ([]byte, error) {
	doc := make(map[string][2]any, len(objects))
	for _, obj := range objects {
		tag, err := tagFor(obj.Kind)
		if err != nil {
			return nil, err
		}
		var v any = obj.Value.Text
		if obj.Kind == mib.KindInteger {
			v = obj.Value.Int
		}
		doc[obj.OID.String()] = [2]any{tag, v}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a snapshot document. Only OID, Kind and Value are set on
// the returned objects.
func Decode(data []byte) ([]mib.Object, error) {
	var doc map[string][]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", ErrCorrupt)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorrupt)
	}
	out := make([]mib.Object, 0, len(doc))
	for key, pair := range doc {
		oid, err := mib.ParseOID(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: %s: want [type, value], got %d elements", ErrCorrupt, key, len(pair))
		}
		var tag string
		if err := json.Unmarshal(pair[0], &tag); err != nil {
			return nil, fmt.Errorf("%w: %s: type tag: %v", ErrCorrupt, key, err)
		}
		val, err := decodeValue(tag, pair[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		out = append(out, mib.Object{OID: oid, Kind: val.Kind, Value: val})
	}
	return out, nil
}

func decodeValue(tag string, raw json.RawMessage) (mib.Value, error) {
	switch tag {
	case TagDisplayString, TagDateAndTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return mib.Value{}, err
		}
		if tag == TagDateAndTime {
			return mib.TimestampValue(s), nil
		}
		return mib.TextValue(s), nil
	case TagInteger32:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return mib.Value{}, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return mib.Value{}, fmt.Errorf("integer %d overflows Integer32", n)
		}
		return mib.IntegerValue(int32(n)), nil
	}
	return mib.Value{}, fmt.Errorf("unknown type tag %q", tag)
}
