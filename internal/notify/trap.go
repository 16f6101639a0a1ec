package notify

import (
	"context"
	"fmt"
	"time"

	"mibagent/internal/mib"

	"github.com/gosnmp/gosnmp"
)

// TrapSink emits an SNMPv2c trap for each crossing.
type TrapSink struct {
	Target    string
	Port      uint16
	Community string
	EventOID  mib.OID
	Timeout   time.Duration

	started time.Time
	send    func(ctx context.Context, g *gosnmp.GoSNMP, trap gosnmp.SnmpTrap) error
}

func NewTrapSink(target string, port uint16, community string, eventOID mib.OID) *TrapSink {
	return &TrapSink{
		Target:    target,
		Port:      port,
		Community: community,
		EventOID:  eventOID,
		Timeout:   2 * time.Second,
		started:   time.Now(),
		send:      sendTrap,
	}
}

func (t *TrapSink) Name() string { return "trap" }

// Send builds the trap varbinds and transmits them to the target.
func (t *TrapSink) Send(ctx context.Context, ev CrossingEvent) error {
	g := &gosnmp.GoSNMP{
		Target:    t.Target,
		Port:      t.Port,
		Community: t.Community,
		Version:   gosnmp.Version2c,
		Timeout:   t.Timeout,
		Retries:   0,
		Context:   ctx,
	}
	send := t.send
	if send == nil {
		send = sendTrap
	}
	if err := send(ctx, g, t.Trap(ev)); err != nil {
		return fmt.Errorf("send trap to %s:%d: %w", t.Target, t.Port, err)
	}
	return nil
}

// Trap returns the trap PDU for ev.
func (t *TrapSink) Trap(ev CrossingEvent) gosnmp.SnmpTrap {
	uptime := uint32(time.Since(t.started) / (10 * time.Millisecond))
	return gosnmp.SnmpTrap{
		Variables: []gosnmp.SnmpPDU{
			{Name: "." + sysUpTimeOID, Type: gosnmp.TimeTicks, Value: uptime},
			{Name: "." + mib.SnmpTrapOID.String(), Type: gosnmp.ObjectIdentifier, Value: "." + t.EventOID.String()},
			{Name: "." + mib.CPUUsageOID.String(), Type: gosnmp.Integer, Value: ev.Sample},
			{Name: "." + mib.CPUThresholdOID.String(), Type: gosnmp.Integer, Value: ev.Threshold},
			{Name: "." + mib.ManagerEmailOID.String(), Type: gosnmp.OctetString, Value: ev.Address},
			{Name: "." + mib.EventTimeOID.String(), Type: gosnmp.OctetString, Value: ev.Timestamp},
		},
	}
}

const sysUpTimeOID = "1.3.6.1.2.1.1.3.0"

func sendTrap(_ context.Context, g *gosnmp.GoSNMP, trap gosnmp.SnmpTrap) error {
	if err := g.Connect(); err != nil {
		return err
	}
	defer g.Conn.Close()
	_, err := g.SendTrap(trap)
	return err
}
