package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"mibagent/internal/agent"
	"mibagent/internal/metrics"
	"mibagent/internal/middleware"
	"mibagent/internal/mib"
	"mibagent/internal/utils"

	"github.com/gin-gonic/gin"
)

const maxWriteBatch = 32

// ObjectHandlers exposes the request dispatcher over JSON.
type ObjectHandlers struct {
	handler agent.Handler
	metrics *metrics.Metrics
	log     *utils.Logger
}

func NewObjectHandlers(h agent.Handler, m *metrics.Metrics, logger *utils.Logger) *ObjectHandlers {
	return &ObjectHandlers{handler: h, metrics: m, log: logger}
}

// VarBindJSON is the API form of a dispatcher result.
type VarBindJSON struct {
	OID       string `json:"oid"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
	Value     any    `json:"value,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// WriteEntry is one assignment of a PUT /api/objects batch. Value must be
// a JSON number for Integer objects and a JSON string otherwise.
type WriteEntry struct {
	OID   string          `json:"oid" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}

func toJSON(vb agent.VarBind) VarBindJSON {
	out := VarBindJSON{OID: vb.OID.String()}
	switch vb.Marker {
	case agent.MarkerNoSuchObject:
		out.Exception = "noSuchObject"
		return out
	case agent.MarkerEndOfView:
		out.Exception = "endOfMibView"
		return out
	}
	out.Name = vb.Name
	out.Type = vb.Value.Kind.String()
	if vb.Value.Kind == mib.KindInteger {
		out.Value = vb.Value.Int
	} else {
		out.Value = vb.Value.Text
	}
	return out
}

func parseOIDParam(c *gin.Context) (mib.OID, bool) {
	oid, err := mib.ParseOID(c.Param("oid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OID", "details": err.Error()})
		return nil, false
	}
	return oid, true
}

// APIWalk returns every object by chaining ReadNext from the root.
func (h *ObjectHandlers) APIWalk(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	out := make([]VarBindJSON, 0, 8)
	cur := mib.OID{}
	for {
		vb := h.handler.ReadNext(p, []mib.OID{cur})[0]
		if vb.Marker != agent.MarkerNone {
			break
		}
		out = append(out, toJSON(vb))
		cur = vb.OID
	}
	h.metrics.ObserveRequest("http", "walk", agent.StatusNoError.String())
	c.JSON(http.StatusOK, gin.H{"objects": out})
}

// APIGet reads a single OID.
func (h *ObjectHandlers) APIGet(c *gin.Context) {
	oid, ok := parseOIDParam(c)
	if !ok {
		return
	}
	vb := h.handler.Read(middleware.PrincipalFrom(c), []mib.OID{oid})[0]
	h.metrics.ObserveRequest("http", "get", agent.StatusNoError.String())
	if vb.Marker != agent.MarkerNone {
		c.JSON(http.StatusNotFound, toJSON(vb))
		return
	}
	c.JSON(http.StatusOK, toJSON(vb))
}

// APINext returns the lexicographic successor of an OID.
func (h *ObjectHandlers) APINext(c *gin.Context) {
	oid, ok := parseOIDParam(c)
	if !ok {
		return
	}
	vb := h.handler.ReadNext(middleware.PrincipalFrom(c), []mib.OID{oid})[0]
	h.metrics.ObserveRequest("http", "getnext", agent.StatusNoError.String())
	if vb.Marker != agent.MarkerNone {
		c.JSON(http.StatusNotFound, toJSON(vb))
		return
	}
	c.JSON(http.StatusOK, toJSON(vb))
}

// APIWrite applies a batch of assignments atomically.
func (h *ObjectHandlers) APIWrite(c *gin.Context) {
	var entries []WriteEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format", "details": err.Error()})
		return
	}
	if len(entries) == 0 || len(entries) > maxWriteBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": "batch must hold between 1 and 32 entries"})
		return
	}
	for i := range entries {
		if err := middleware.Validator().Struct(entries[i]); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "index": i + 1, "details": err.Error()})
			return
		}
	}

	inputs := make([]agent.Input, len(entries))
	for i, e := range entries {
		in, err := toInput(e)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry", "index": i + 1, "details": err.Error()})
			return
		}
		inputs[i] = in
	}

	p := middleware.PrincipalFrom(c)
	binds, err := h.handler.Write(p, inputs)
	if err != nil {
		status, index := agent.StatusOf(err)
		h.metrics.ObserveRequest("http", "set", status.String())
		c.JSON(httpStatus(status), gin.H{"status": status.String(), "index": index, "error": err.Error()})
		return
	}
	h.metrics.ObserveRequest("http", "set", agent.StatusNoError.String())
	out := make([]VarBindJSON, len(binds))
	for i, vb := range binds {
		out[i] = toJSON(vb)
	}
	c.JSON(http.StatusOK, gin.H{"status": agent.StatusNoError.String(), "objects": out})
}

var errUnsupportedValue = errors.New("value must be a JSON number or string")

func toInput(e WriteEntry) (agent.Input, error) {
	oid, err := mib.ParseOID(e.OID)
	if err != nil {
		return agent.Input{}, err
	}
	raw := bytes.TrimSpace(e.Value)
	if len(raw) == 0 {
		return agent.Input{}, errUnsupportedValue
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return agent.Input{}, err
		}
		return agent.OctetsInput(oid, []byte(s)), nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return agent.Input{}, err
		}
		v, err := n.Int64()
		if errors.Is(err, strconv.ErrRange) {
			// v is saturated, so the range check rejects it.
			return agent.IntegerInput(oid, v), nil
		}
		if err != nil {
			return agent.Input{OID: oid, Syntax: agent.SyntaxOther}, nil
		}
		return agent.IntegerInput(oid, v), nil
	}
	return agent.Input{OID: oid, Syntax: agent.SyntaxOther}, nil
}

func httpStatus(s agent.Status) int {
	switch s {
	case agent.StatusNotWritable:
		return http.StatusForbidden
	case agent.StatusNoAccess, agent.StatusNoSuchName:
		return http.StatusNotFound
	case agent.StatusWrongType, agent.StatusWrongValue:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
