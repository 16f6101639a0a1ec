// Package snmp is the SNMPv1/v2c front end: it decodes UDP datagrams,
// authenticates the community, calls the request handler and encodes
// the response.
package snmp

import (
	"context"
	"errors"
	"net"
	"strings"

	"mibagent/internal/agent"
	"mibagent/internal/metrics"
	"mibagent/internal/middleware"
	"mibagent/internal/mib"
	"mibagent/internal/utils"

	"github.com/gosnmp/gosnmp"
)

const maxDatagram = 65535

// Engine serves SNMP requests against an agent.Handler.
type Engine struct {
	handler     agent.Handler
	communities map[string]agent.Class
	limiter     *middleware.RateLimiter
	metrics     *metrics.Metrics
	log         *utils.Logger
	codec       *gosnmp.GoSNMP
}

// Options configures an Engine.
type Options struct {
	// Communities maps a community string to the principal class it grants.
	Communities map[string]agent.Class
	Limiter     *middleware.RateLimiter
	Metrics     *metrics.Metrics
	Logger      *utils.Logger
}

func NewEngine(h agent.Handler, opts Options) *Engine {
	communities := make(map[string]agent.Class, len(opts.Communities))
	for name, class := range opts.Communities {
		communities[name] = class
	}
	return &Engine{
		handler:     h,
		communities: communities,
		limiter:     opts.Limiter,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		codec:       &gosnmp.GoSNMP{},
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (e *Engine) ListenAndServe(ctx context.Context, addr string) error {
	pc, err := utils.ListenUDP(ctx, addr)
	if err != nil {
		return err
	}
	e.log.Writef("SNMP agent listening on %s", pc.LocalAddr())
	return e.Serve(ctx, pc)
}

// Serve reads datagrams from pc until ctx is cancelled. pc is closed on
// return.
func (e *Engine) Serve(ctx context.Context, pc net.PacketConn) error {
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()
	defer pc.Close()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			e.log.Writef("SNMP read error: %v", err)
			continue
		}
		resp := e.HandlePacket(buf[:n], from)
		if resp == nil {
			continue
		}
		if _, err := pc.WriteTo(resp, from); err != nil {
			e.log.Writef("SNMP write to %s failed: %v", from, err)
		}
	}
}

// HandlePacket processes one request datagram and returns the encoded
// response, or nil when the packet is dropped.
func (e *Engine) HandlePacket(data []byte, from net.Addr) []byte {
	if !e.limiter.Allow(hostOf(from)) {
		e.metrics.ObserveDrop("rate")
		return nil
	}
	req, err := e.codec.SnmpDecodePacket(data)
	if err != nil {
		e.metrics.ObserveDrop("decode")
		return nil
	}
	if req.Version != gosnmp.Version1 && req.Version != gosnmp.Version2c {
		e.metrics.ObserveDrop("version")
		return nil
	}
	class, ok := e.communities[req.Community]
	if !ok {
		e.metrics.ObserveDrop("community")
		e.log.Writef("SNMP request from %s with unknown community dropped", from)
		return nil
	}
	principal := agent.Principal{Name: req.Community, Class: class}

	var (
		op   string
		resp *gosnmp.SnmpPacket
	)
	switch req.PDUType {
	case gosnmp.GetRequest:
		op = "get"
		resp = e.readResponse(req, e.handler.Read(principal, requestOIDs(req)))
	case gosnmp.GetNextRequest:
		op = "getnext"
		resp = e.readResponse(req, e.handler.ReadNext(principal, requestOIDs(req)))
	case gosnmp.SetRequest:
		op = "set"
		resp = e.writeResponse(req, principal)
	default:
		e.metrics.ObserveDrop("pdu")
		return nil
	}
	e.metrics.ObserveRequest("snmp", op, agent.Status(resp.Error).String())

	out, err := resp.MarshalMsg()
	if err != nil {
		e.log.Writef("SNMP encode failed for %s: %v", from, err)
		return nil
	}
	return out
}

func (e *Engine) readResponse(req *gosnmp.SnmpPacket, binds []agent.VarBind) *gosnmp.SnmpPacket {
	resp := newResponse(req)
	for i, vb := range binds {
		if vb.Marker == agent.MarkerNone {
			resp.Variables = append(resp.Variables, toPDU(vb))
			continue
		}
		if req.Version == gosnmp.Version1 {
			return errorResponse(req, gosnmp.NoSuchName, i+1)
		}
		pdu := toPDU(vb)
		pdu.Name = req.Variables[i].Name
		resp.Variables = append(resp.Variables, pdu)
	}
	return resp
}

func (e *Engine) writeResponse(req *gosnmp.SnmpPacket, p agent.Principal) *gosnmp.SnmpPacket {
	inputs := make([]agent.Input, 0, len(req.Variables))
	for _, v := range req.Variables {
		inputs = append(inputs, toInput(v))
	}
	binds, err := e.handler.Write(p, inputs)
	if err != nil {
		status, index := agent.StatusOf(err)
		return errorResponse(req, wireStatus(req.Version, status), index)
	}
	resp := newResponse(req)
	for _, vb := range binds {
		resp.Variables = append(resp.Variables, toPDU(vb))
	}
	return resp
}

func newResponse(req *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	return &gosnmp.SnmpPacket{
		Version:   req.Version,
		Community: req.Community,
		PDUType:   gosnmp.GetResponse,
		RequestID: req.RequestID,
		Error:     gosnmp.NoError,
	}
}

// errorResponse echoes the request varbinds with the given status.
func errorResponse(req *gosnmp.SnmpPacket, status gosnmp.SNMPError, index int) *gosnmp.SnmpPacket {
	resp := newResponse(req)
	resp.Error = status
	if index < 0 || index > 255 {
		index = 0
	}
	resp.ErrorIndex = uint8(index)
	resp.Variables = make([]gosnmp.SnmpPDU, len(req.Variables))
	for i, v := range req.Variables {
		resp.Variables[i] = v
		if v.Type != gosnmp.Integer && v.Type != gosnmp.OctetString {
			resp.Variables[i] = gosnmp.SnmpPDU{Name: v.Name, Type: gosnmp.Null}
		}
	}
	return resp
}

// wireStatus maps a dispatcher status onto the version's error space.
// SNMPv1 has no v2 error codes, so they collapse per RFC 3584.
func wireStatus(version gosnmp.SnmpVersion, s agent.Status) gosnmp.SNMPError {
	if version != gosnmp.Version1 {
		return gosnmp.SNMPError(s)
	}
	switch s {
	case agent.StatusNoError:
		return gosnmp.NoError
	case agent.StatusNoAccess, agent.StatusNotWritable, agent.StatusNoSuchName:
		return gosnmp.NoSuchName
	case agent.StatusWrongType, agent.StatusWrongValue:
		return gosnmp.BadValue
	}
	return gosnmp.GenErr
}

func requestOIDs(req *gosnmp.SnmpPacket) []mib.OID {
	oids := make([]mib.OID, len(req.Variables))
	for i, v := range req.Variables {
		oid, err := mib.ParseOID(v.Name)
		if err != nil {
			oid = mib.OID{}
		}
		oids[i] = oid
	}
	return oids
}

func toInput(v gosnmp.SnmpPDU) agent.Input {
	oid, err := mib.ParseOID(v.Name)
	if err != nil {
		oid = mib.OID{}
	}
	switch v.Type {
	case gosnmp.Integer:
		return agent.IntegerInput(oid, gosnmp.ToBigInt(v.Value).Int64())
	case gosnmp.OctetString:
		switch b := v.Value.(type) {
		case []byte:
			return agent.OctetsInput(oid, b)
		case string:
			return agent.OctetsInput(oid, []byte(b))
		}
	}
	return agent.Input{OID: oid, Syntax: agent.SyntaxOther}
}

func toPDU(vb agent.VarBind) gosnmp.SnmpPDU {
	name := "." + vb.OID.String()
	switch vb.Marker {
	case agent.MarkerNoSuchObject:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.NoSuchObject}
	case agent.MarkerEndOfView:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.EndOfMibView}
	}
	switch vb.Value.Kind {
	case mib.KindInteger:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.Integer, Value: int(vb.Value.Int)}
	default:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.OctetString, Value: []byte(vb.Value.Text)}
	}
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	s := addr.String()
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return strings.TrimSpace(s)
}
