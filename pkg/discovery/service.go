package discovery

import (
	"net"
)

const (
	// ServiceType is the mDNS service type announced by the TCP dev host.
	ServiceType = "_bleota._tcp"
	// Domain is the mDNS domain used for announcements and lookups.
	Domain = "local"
)

// ServiceInfo describes one announced update host on the LAN.
type ServiceInfo struct {
	Name   string // instance name, the device's human-readable label
	Type   string // service type, e.g. "_bleota._tcp"
	Domain string // mDNS domain, e.g. "local"
	Addr   net.IP
	Port   int
}

// HostPort returns the dialable "host:port" form of the service.
func (s ServiceInfo) HostPort() string {
	return net.JoinHostPort(s.Addr.String(), fmtPort(s.Port))
}
