package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	natlib "github.com/libp2p/go-nat"
)

// NAT is an alias to the libp2p NAT interface so callers need not import it.
type NAT = natlib.NAT

const (
	natDiscoverTimeout = 5 * time.Second
	mappingLifetime    = 10 * time.Minute
	mappingRefresh     = 5 * time.Minute
)

// DiscoverFunc locates a NAT gateway. Replaced in tests.
type DiscoverFunc func(ctx context.Context) (NAT, error)

// PortMapper keeps a UPnP/NAT-PMP mapping alive for one local port.
type PortMapper struct {
	Protocol    string
	Port        int
	Description string
	Discover    DiscoverFunc
	Log         *Logger

	once    sync.Once
	nat     NAT
	natErr  error
	mu      sync.Mutex
	extPort int
}

// NewPortMapper builds a mapper for protocol ("udp" or "tcp") and port.
func NewPortMapper(protocol string, port int, description string, logger *Logger) *PortMapper {
	return &PortMapper{
		Protocol:    protocol,
		Port:        port,
		Description: description,
		Discover:    natlib.DiscoverGateway,
		Log:         logger,
	}
}

// discover runs gateway discovery once; SSDP lookups are slow.
func (p *PortMapper) discover(ctx context.Context) (NAT, error) {
	p.once.Do(func() {
		c, cancel := context.WithTimeout(ctx, natDiscoverTimeout)
		defer cancel()
		p.nat, p.natErr = p.Discover(c)
		if p.natErr == nil && p.nat == nil {
			p.natErr = fmt.Errorf("no NAT gateway found")
		}
	})
	return p.nat, p.natErr
}

// Refresh (re)creates the mapping and returns the external port.
func (p *PortMapper) Refresh(ctx context.Context) (int, error) {
	n, err := p.discover(ctx)
	if err != nil {
		return 0, err
	}
	c, cancel := context.WithTimeout(ctx, natDiscoverTimeout)
	defer cancel()
	ext, err := n.AddPortMapping(c, p.Protocol, p.Port, p.Description, mappingLifetime)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.extPort = ext
	p.mu.Unlock()
	return ext, nil
}

// ExternalPort returns the last mapped external port, or 0.
func (p *PortMapper) ExternalPort() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extPort
}

// Run refreshes the mapping until ctx is done, then removes it.
func (p *PortMapper) Run(ctx context.Context) {
	p.refreshAndLog(ctx)
	ticker := time.NewTicker(mappingRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.refreshAndLog(ctx)
		case <-ctx.Done():
			p.remove()
			return
		}
	}
}

func (p *PortMapper) refreshAndLog(ctx context.Context) {
	ext, err := p.Refresh(ctx)
	if err != nil {
		p.Log.Writef("Port forward attempt failed for %s %d: %v", p.Protocol, p.Port, err)
		return
	}
	p.Log.Writef("Port forward active: internal %s %d -> external %d", p.Protocol, p.Port, ext)
}

// remove deletes the mapping best-effort.
func (p *PortMapper) remove() {
	if p.ExternalPort() == 0 {
		return
	}
	n, err := p.discover(context.Background())
	if err != nil {
		return
	}
	c, cancel := context.WithTimeout(context.Background(), natDiscoverTimeout)
	defer cancel()
	if err := n.DeletePortMapping(c, p.Protocol, p.Port); err != nil {
		p.Log.Write("Port forward removal failed: " + err.Error())
		return
	}
	p.Log.Write("Port forward mapping removed")
}
