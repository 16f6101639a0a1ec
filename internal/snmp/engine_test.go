package snmp

import (
	"context"
	"net"
	"testing"
	"time"

	"mibagent/internal/agent"
	"mibagent/internal/metrics"
	"mibagent/internal/middleware"
	"mibagent/internal/mib"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var testPeer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}

func newTestEngine(t *testing.T) (*Engine, *mib.Store) {
	t.Helper()
	store := mib.NewDefaultStore()
	d := agent.NewDispatcher(store, nil, nil)
	e := NewEngine(d, Options{
		Communities: map[string]agent.Class{"public": agent.ReadOnly, "private": agent.ReadWrite},
		Metrics:     metrics.New(),
	})
	return e, store
}

func encode(t *testing.T, version gosnmp.SnmpVersion, community string, pdu gosnmp.PDUType, vars ...gosnmp.SnmpPDU) []byte {
	t.Helper()
	pkt := &gosnmp.SnmpPacket{
		Version:   version,
		Community: community,
		PDUType:   pdu,
		RequestID: 4242,
		Variables: vars,
	}
	b, err := pkt.MarshalMsg()
	require.NoError(t, err)
	return b
}

func decode(t *testing.T, b []byte) *gosnmp.SnmpPacket {
	t.Helper()
	require.NotNil(t, b, "expected a response")
	pkt, err := (&gosnmp.GoSNMP{}).SnmpDecodePacket(b)
	require.NoError(t, err)
	return pkt
}

func null(oid mib.OID) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: "." + oid.String(), Type: gosnmp.Null}
}

func TestGet(t *testing.T) {
	e, _ := newTestEngine(t)
	resp := decode(t, e.HandlePacket(encode(t, gosnmp.Version2c, "public", gosnmp.GetRequest,
		null(mib.ManagerNameOID), null(mib.CPUThresholdOID)), testPeer))

	assert.Equal(t, gosnmp.GetResponse, resp.PDUType)
	assert.Equal(t, uint32(4242), resp.RequestID)
	assert.Equal(t, gosnmp.NoError, resp.Error)
	require.Len(t, resp.Variables, 2)
	assert.Equal(t, gosnmp.OctetString, resp.Variables[0].Type)
	assert.Equal(t, []byte(mib.DefaultManagerName), resp.Variables[0].Value)
	assert.Equal(t, gosnmp.Integer, resp.Variables[1].Type)
	assert.Equal(t, mib.DefaultThreshold, resp.Variables[1].Value)
}

func TestGetUnknownV2cAndV1(t *testing.T) {
	e, _ := newTestEngine(t)
	unknown := mib.MustParseOID("1.3.6.1.4.1.28308.1.9.0")

	resp := decode(t, e.HandlePacket(encode(t, gosnmp.Version2c, "public", gosnmp.GetRequest, null(unknown)), testPeer))
	assert.Equal(t, gosnmp.NoError, resp.Error)
	require.Len(t, resp.Variables, 1)
	assert.Equal(t, gosnmp.NoSuchObject, resp.Variables[0].Type)
	assert.Equal(t, ".1.3.6.1.4.1.28308.1.9.0", resp.Variables[0].Name)

	resp = decode(t, e.HandlePacket(encode(t, gosnmp.Version1, "public", gosnmp.GetRequest,
		null(mib.ManagerNameOID), null(unknown)), testPeer))
	assert.Equal(t, gosnmp.NoSuchName, resp.Error)
	assert.Equal(t, uint8(2), resp.ErrorIndex)
}

func TestGetNextWalk(t *testing.T) {
	e, _ := newTestEngine(t)
	var names []string
	cur := mib.MustParseOID("1.3.6.1.4.1.28308")
	for i := 0; i < 10; i++ {
		resp := decode(t, e.HandlePacket(encode(t, gosnmp.Version2c, "public", gosnmp.GetNextRequest, null(cur)), testPeer))
		require.Len(t, resp.Variables, 1)
		vb := resp.Variables[0]
		if vb.Type == gosnmp.EndOfMibView {
			assert.Equal(t, "."+cur.String(), vb.Name)
			break
		}
		names = append(names, vb.Name)
		cur = mib.MustParseOID(vb.Name)
	}
	assert.Equal(t, []string{
		".1.3.6.1.4.1.28308.1.1.0",
		".1.3.6.1.4.1.28308.1.2.0",
		".1.3.6.1.4.1.28308.1.3.0",
		".1.3.6.1.4.1.28308.1.4.0",
		".1.3.6.1.4.1.28308.1.5.0",
	}, names)
}

func TestSetWithReadWriteCommunity(t *testing.T) {
	e, store := newTestEngine(t)
	resp := decode(t, e.HandlePacket(encode(t, gosnmp.Version2c, "private", gosnmp.SetRequest,
		gosnmp.SnmpPDU{Name: "." + mib.CPUThresholdOID.String(), Type: gosnmp.Integer, Value: 55},
		gosnmp.SnmpPDU{Name: "." + mib.ManagerNameOID.String(), Type: gosnmp.OctetString, Value: []byte("Ops")},
	), testPeer))

	assert.Equal(t, gosnmp.NoError, resp.Error)
	require.Len(t, resp.Variables, 2)
	assert.Equal(t, 55, resp.Variables[0].Value)

	obj, err := store.Get(mib.ManagerNameOID)
	require.NoError(t, err)
	assert.Equal(t, "Ops", obj.Value.Text)
}

func TestSetWithReadOnlyCommunity(t *testing.T) {
	e, store := newTestEngine(t)
	before := store.Generation()
	resp := decode(t, e.HandlePacket(encode(t, gosnmp.Version2c, "public", gosnmp.SetRequest,
		gosnmp.SnmpPDU{Name: "." + mib.CPUThresholdOID.String(), Type: gosnmp.Integer, Value: 55},
	), testPeer))

	assert.Equal(t, gosnmp.NotWritable, resp.Error)
	assert.Equal(t, uint8(1), resp.ErrorIndex)
	require.Len(t, resp.Variables, 1)
	assert.Equal(t, 55, resp.Variables[0].Value)
	assert.Equal(t, before, store.Generation())
}

func TestSetValidationErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	cases := []struct {
		name    string
		version gosnmp.SnmpVersion
		pdu     gosnmp.SnmpPDU
		status  gosnmp.SNMPError
	}{
		{"out of range", gosnmp.Version2c, gosnmp.SnmpPDU{Name: "." + mib.CPUThresholdOID.String(), Type: gosnmp.Integer, Value: 101}, gosnmp.WrongValue},
		{"wrong type", gosnmp.Version2c, gosnmp.SnmpPDU{Name: "." + mib.CPUThresholdOID.String(), Type: gosnmp.OctetString, Value: []byte("50")}, gosnmp.WrongType},
		{"read-only object", gosnmp.Version2c, gosnmp.SnmpPDU{Name: "." + mib.CPUUsageOID.String(), Type: gosnmp.Integer, Value: 5}, gosnmp.NotWritable},
		{"unknown object", gosnmp.Version2c, gosnmp.SnmpPDU{Name: ".1.3.6.1.4.1.28308.1.9.0", Type: gosnmp.Integer, Value: 5}, gosnmp.NoAccess},
		{"v1 out of range", gosnmp.Version1, gosnmp.SnmpPDU{Name: "." + mib.CPUThresholdOID.String(), Type: gosnmp.Integer, Value: 101}, gosnmp.BadValue},
		{"v1 read-only object", gosnmp.Version1, gosnmp.SnmpPDU{Name: "." + mib.CPUUsageOID.String(), Type: gosnmp.Integer, Value: 5}, gosnmp.NoSuchName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := decode(t, e.HandlePacket(encode(t, tc.version, "private", gosnmp.SetRequest, tc.pdu), testPeer))
			assert.Equal(t, tc.status, resp.Error)
			assert.Equal(t, uint8(1), resp.ErrorIndex)
		})
	}
}

func TestDrops(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Nil(t, e.HandlePacket([]byte{0x01, 0x02, 0x03}, testPeer))
	assert.Nil(t, e.HandlePacket(encode(t, gosnmp.Version2c, "guess", gosnmp.GetRequest, null(mib.ManagerNameOID)), testPeer))
}

func TestRateLimitedPeerIsDropped(t *testing.T) {
	store := mib.NewDefaultStore()
	limiter := middleware.NewRateLimiter(rate.Limit(0.001), 1)
	defer limiter.Stop()
	e := NewEngine(agent.NewDispatcher(store, nil, nil), Options{
		Communities: map[string]agent.Class{"public": agent.ReadOnly},
		Limiter:     limiter,
	})
	req := encode(t, gosnmp.Version2c, "public", gosnmp.GetRequest, null(mib.ManagerNameOID))
	assert.NotNil(t, e.HandlePacket(req, testPeer))
	assert.Nil(t, e.HandlePacket(req, testPeer))

	other := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 2), Port: 40000}
	assert.NotNil(t, e.HandlePacket(req, other))
}

func TestServeOverUDP(t *testing.T) {
	e, _ := newTestEngine(t)
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, pc) }()

	port := uint16(pc.LocalAddr().(*net.UDPAddr).Port)
	client := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      port,
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	require.NoError(t, client.Connect())
	defer client.Conn.Close()

	result, err := client.Get([]string{"." + mib.ManagerEmailOID.String()})
	require.NoError(t, err)
	require.Len(t, result.Variables, 1)
	assert.Equal(t, []byte(mib.DefaultManagerEmail), result.Variables[0].Value)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
