package utils

import (
	"context"
	"net"
)

// ListenUDP opens a UDP socket with SO_REUSEADDR where the platform
// supports it, so a restarted agent can rebind its port immediately.
func ListenUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	return lc.ListenPacket(ctx, "udp", addr)
}
