package mib

// Enterprise subtree and the five canonical scalars served by the agent.
var (
	EnterpriseOID   = MustParseOID("1.3.6.1.4.1.28308")
	ManagerNameOID  = MustParseOID("1.3.6.1.4.1.28308.1.1.0")
	ManagerEmailOID = MustParseOID("1.3.6.1.4.1.28308.1.2.0")
	CPUUsageOID     = MustParseOID("1.3.6.1.4.1.28308.1.3.0")
	CPUThresholdOID = MustParseOID("1.3.6.1.4.1.28308.1.4.0")
	EventTimeOID    = MustParseOID("1.3.6.1.4.1.28308.1.5.0")

	// CPUEventOID identifies the threshold-crossing notification.
	CPUEventOID = MustParseOID("1.3.6.1.4.1.28308.2.1")
	// SnmpTrapOID is snmpTrapOID.0 from SNMPv2-MIB.
	SnmpTrapOID = MustParseOID("1.3.6.1.6.3.1.1.4.1.0")
)

const (
	DefaultManagerName  = "Admin"
	DefaultManagerEmail = "admin@example.com"
	DefaultThreshold    = 20
)

// DefaultObjects returns the compiled-in object set used when no valid
// snapshot exists.
func DefaultObjects() []Object {
	return []Object{
		{OID: ManagerNameOID.Clone(), Name: "managerName", Kind: KindText, Value: TextValue(DefaultManagerName), Writable: true},
		{OID: ManagerEmailOID.Clone(), Name: "managerEmail", Kind: KindText, Value: TextValue(DefaultManagerEmail), Writable: true},
		{OID: CPUUsageOID.Clone(), Name: "cpuUsage", Kind: KindInteger, Value: IntegerValue(0)},
		{OID: CPUThresholdOID.Clone(), Name: "cpuThreshold", Kind: KindInteger, Value: IntegerValue(DefaultThreshold), Writable: true},
		{OID: EventTimeOID.Clone(), Name: "eventTime", Kind: KindTimestamp, Value: TimestampValue("")},
	}
}

// NewDefaultStore builds a store holding DefaultObjects.
func NewDefaultStore() *Store {
	s, err := NewStore(DefaultObjects())
	if err != nil {
		panic(err)
	}
	return s
}
