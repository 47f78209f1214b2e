package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Instance is a scenebridge server found on the local network
type Instance struct {
	// Name is the mDNS instance name (e.g., "scenebridge")
	Name string

	// Hostname is the advertising host (e.g., "studio.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the command server port
	Port int

	// Version is the server version from the TXT record
	Version string

	// Features lists the optional command groups enabled on the server
	Features []string

	// Metadata holds every TXT record
	Metadata map[string]string

	// DiscoveredAt is when the instance answered
	DiscoveredAt time.Time
}

// String returns a human-readable description of the instance
func (i *Instance) String() string {
	return fmt.Sprintf("%s (%s) at %s", i.Name, i.Hostname, i.Address())
}

// Address returns host:port suitable for net.Dial
func (i *Instance) Address() string {
	return net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
}

// GetMetadata retrieves a TXT value by key, or "" if not present
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}
