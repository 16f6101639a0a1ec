package agent

import "fmt"

// Class is the access class granted to an authenticated caller.
type Class int

const (
	ReadOnly Class = iota + 1
	ReadWrite
)

func (c Class) String() string {
	switch c {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// ParseClass accepts the names produced by String.
func ParseClass(s string) (Class, error) {
	switch s {
	case "read-only":
		return ReadOnly, nil
	case "read-write":
		return ReadWrite, nil
	}
	return 0, fmt.Errorf("unknown access class %q", s)
}

// Principal identifies the caller of a dispatcher operation. The protocol
// engine computes it once, when it authenticates the message.
type Principal struct {
	Name  string
	Class Class
}

// CanWrite reports whether p may modify objects.
func (p Principal) CanWrite() bool {
	return p.Class == ReadWrite
}
