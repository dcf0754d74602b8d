package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/arbor-protocol/arbor-go/pkg/version"
)

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// DeviceID is the device ID announced in the "id" TXT record.
	// Required.
	DeviceID string

	// Port is the service port. Defaults to DefaultPort.
	Port int

	// Instance is the mDNS instance name. Defaults to the device ID,
	// truncated to the DNS label limit.
	Instance string

	// Interface specifies which network interface to advertise on.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL. Defaults to DefaultTTL.
	TTL time.Duration

	// ProtocolVersion is announced in the "proto" TXT record.
	// Defaults to the protocol version this library implements.
	ProtocolVersion string
}

// Advertiser announces an Arbor device as an "_arbor._tcp" service.
type Advertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. Announce starts the actual
// advertisement.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.DeviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if config.Port <= 0 {
		config.Port = DefaultPort
	}
	if config.Instance == "" {
		config.Instance = config.DeviceID
	}
	if len(config.Instance) > MaxInstanceNameLen {
		config.Instance = config.Instance[:MaxInstanceNameLen]
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.ProtocolVersion == "" {
		config.ProtocolVersion = version.Current
	}

	return &Advertiser{config: config}, nil
}

// Instance returns the mDNS instance name that will be announced.
func (a *Advertiser) Instance() string {
	return a.config.Instance
}

// TXT returns the TXT records that will be announced.
func (a *Advertiser) TXT() []string {
	return encodeTXT(a.config.DeviceID, a.config.ProtocolVersion)
}

// Announce registers the service on the local network. Calling it again
// replaces a previous registration.
func (a *Advertiser) Announce() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	opts := []zeroconf.ServerOption{
		zeroconf.TTL(uint32(a.config.TTL.Seconds())),
	}

	server, err := zeroconf.Register(
		a.config.Instance,
		ServiceType,
		Domain,
		a.config.Port,
		a.TXT(),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("registering %s: %w", ServiceType, err)
	}

	a.server = server
	return nil
}

// Close withdraws the advertisement. Safe to call without a prior
// Announce, and more than once.
func (a *Advertiser) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// interfaces returns the network interfaces to advertise on.
// Nil means all multicast-capable interfaces.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
