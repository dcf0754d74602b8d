package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type for Arbor devices.
	ServiceType = "_arbor._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the default Arbor port, mirrored from the transport
	// layer so this package stays free of transport imports.
	DefaultPort = 8614
)

// TXT record key constants.
const (
	// TXTKeyDeviceID carries the device ID. Required.
	TXTKeyDeviceID = "id"

	// TXTKeyProtocol carries the Arbor protocol version.
	TXTKeyProtocol = "proto"
)

// Timing constants.
const (
	// DefaultTTL is the DNS record TTL for advertisements.
	DefaultTTL = 120 * time.Second

	// DefaultBrowseTimeout bounds a Browse call when the caller passes
	// no timeout of its own.
	DefaultBrowseTimeout = 5 * time.Second
)

// MaxInstanceNameLen is the DNS label limit.
const MaxInstanceNameLen = 63

// Discovery errors.
var (
	ErrMissingDeviceID     = errors.New("device id required")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// Found describes an Arbor device seen on the local network.
type Found struct {
	// Instance is the mDNS instance name.
	Instance string

	// Host is the advertised hostname (e.g., "dev8047.local.").
	Host string

	// Port is the service port.
	Port int

	// Addrs contains the resolved IP addresses, IPv4 before IPv6.
	Addrs []string

	// DeviceID is the device ID from the "id" TXT record.
	DeviceID string

	// Protocol is the protocol version from the "proto" TXT record,
	// empty if the device did not announce one.
	Protocol string
}

// Addr returns a dialable "host:port" address using the first resolved
// IP, falling back to the hostname when no address was resolved.
func (f Found) Addr() string {
	host := f.Host
	if len(f.Addrs) > 0 {
		host = f.Addrs[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(f.Port))
}

// ServiceEntry is a library-neutral mDNS entry. Browser implementations
// convert their resolver's native entries into this form before parsing.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     int
	Text     []string
	Addrs    []string
}

// ToFound parses the entry's TXT records into a Found. Entries without
// an "id" record are not Arbor devices and are rejected.
func (e *ServiceEntry) ToFound() (*Found, error) {
	txt := parseTXT(e.Text)

	deviceID, ok := txt[TXTKeyDeviceID]
	if !ok || deviceID == "" {
		return nil, ErrMissingDeviceID
	}

	return &Found{
		Instance: e.Instance,
		Host:     e.Host,
		Port:     e.Port,
		Addrs:    e.Addrs,
		DeviceID: deviceID,
		Protocol: txt[TXTKeyProtocol],
	}, nil
}

// ValidateInstanceName checks if an instance name fits in a DNS label.
func ValidateInstanceName(name string) error {
	if name == "" || len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
