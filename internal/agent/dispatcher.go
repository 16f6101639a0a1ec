// Package agent implements the request dispatcher: the Read, ReadNext and
// Write operations a protocol engine invokes for each inbound request,
// including validation, access control and error-status selection.
package agent

import (
	"fmt"
	"unicode/utf8"

	"mibagent/internal/mib"
	"mibagent/internal/utils"
)

// Handler is the capability a protocol engine needs from the agent core.
type Handler interface {
	Read(p Principal, oids []mib.OID) []VarBind
	ReadNext(p Principal, oids []mib.OID) []VarBind
	Write(p Principal, inputs []Input) ([]VarBind, error)
}

// Persister saves the store after a successful mutation.
type Persister interface {
	Save(store *mib.Store) error
}

// Dispatcher serves requests against a single Object Store.
type Dispatcher struct {
	store     *mib.Store
	persister Persister
	log       *utils.Logger
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher. persister may be nil.
func NewDispatcher(store *mib.Store, persister Persister, logger *utils.Logger) *Dispatcher {
	return &Dispatcher{store: store, persister: persister, log: logger}
}

// Store returns the underlying store.
func (d *Dispatcher) Store() *mib.Store {
	return d.store
}

// Read looks up every OID. Unknown OIDs yield a NoSuchObject marker in
// their position. All objects are readable by every principal.
func (d *Dispatcher) Read(_ Principal, oids []mib.OID) []VarBind {
	out := make([]VarBind, len(oids))
	_ = d.store.View(func(tx *mib.Tx) error {
		for i, oid := range oids {
			obj, err := tx.Get(oid)
			if err != nil {
				out[i] = VarBind{OID: oid, Marker: MarkerNoSuchObject}
				continue
			}
			out[i] = bindObject(obj)
		}
		return nil
	})
	return out
}

// ReadNext returns the lexicographic successor of every OID, or an
// EndOfView marker carrying the requested OID when none exists.
func (d *Dispatcher) ReadNext(_ Principal, oids []mib.OID) []VarBind {
	out := make([]VarBind, len(oids))
	_ = d.store.View(func(tx *mib.Tx) error {
		for i, oid := range oids {
			obj, ok := tx.Next(oid)
			if !ok {
				out[i] = VarBind{OID: oid, Marker: MarkerEndOfView}
				continue
			}
			out[i] = bindObject(obj)
		}
		return nil
	})
	return out
}

// Write validates the whole batch and then applies it atomically. The
// first failing entry aborts the batch with no mutation; the returned
// *RequestError carries its status and 1-based index. On success the
// store is persisted and the post-write values are returned.
func (d *Dispatcher) Write(p Principal, inputs []Input) ([]VarBind, error) {
	if !p.CanWrite() {
		d.log.Writef("Write denied for %s principal %q", p.Class, p.Name)
		return nil, requestError(StatusNotWritable, 1, fmt.Sprintf("principal %q is %s", p.Name, p.Class))
	}

	out := make([]VarBind, len(inputs))
	err := d.store.Update(func(tx *mib.Tx) error {
		values := make([]mib.Value, len(inputs))
		for i, in := range inputs {
			v, rerr := validate(tx, i+1, in)
			if rerr != nil {
				return rerr
			}
			values[i] = v
		}
		for i, in := range inputs {
			if err := tx.Set(in.OID, values[i]); err != nil {
				return requestError(StatusGenErr, i+1, err.Error())
			}
		}
		for i, in := range inputs {
			obj, err := tx.Get(in.OID)
			if err != nil {
				return requestError(StatusGenErr, i+1, err.Error())
			}
			out[i] = bindObject(obj)
		}
		return nil
	})
	if err != nil {
		d.log.Writef("Write rejected: %v", err)
		return nil, err
	}

	if d.persister != nil {
		if perr := d.persister.Save(d.store); perr != nil {
			d.log.Writef("Error saving MIB state after write: %v", perr)
		}
	}
	return out, nil
}

// validate applies the per-entry checks in order: existence, object
// access, wire type, then length or range.
func validate(tx *mib.Tx, index int, in Input) (mib.Value, *RequestError) {
	obj, err := tx.Get(in.OID)
	if err != nil {
		return mib.Value{}, requestError(StatusNoAccess, index, fmt.Sprintf("unknown object %s", in.OID))
	}
	if !obj.Writable {
		return mib.Value{}, requestError(StatusNotWritable, index, fmt.Sprintf("%s is read-only", obj.Name))
	}
	if !acceptsSyntax(obj.Kind, in.Syntax) {
		return mib.Value{}, requestError(StatusWrongType, index, fmt.Sprintf("%s expects %s", obj.Name, obj.Kind))
	}
	switch obj.Kind {
	case mib.KindText:
		if !utf8.Valid(in.Octets) {
			return mib.Value{}, requestError(StatusWrongValue, index, fmt.Sprintf("%s is not valid UTF-8", obj.Name))
		}
		if n := utf8.RuneCount(in.Octets); n > mib.MaxTextLength {
			return mib.Value{}, requestError(StatusWrongValue, index, fmt.Sprintf("%s length %d exceeds %d", obj.Name, n, mib.MaxTextLength))
		}
		return mib.TextValue(string(in.Octets)), nil
	case mib.KindInteger:
		if in.Integer < mib.MinInteger || in.Integer > mib.MaxInteger {
			return mib.Value{}, requestError(StatusWrongValue, index, fmt.Sprintf("%s value %d outside [%d, %d]", obj.Name, in.Integer, mib.MinInteger, mib.MaxInteger))
		}
		return mib.IntegerValue(int32(in.Integer)), nil
	case mib.KindTimestamp:
		return mib.TimestampValue(string(in.Octets)), nil
	}
	return mib.Value{}, requestError(StatusWrongType, index, fmt.Sprintf("%s has unsupported kind", obj.Name))
}
