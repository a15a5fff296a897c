package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of ntbridge servers.
	ServiceType = "_networktables._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default server port.
	DefaultPort = 5810

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// BrowseTimeout is the default duration of a one-shot lookup.
	BrowseTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyName     = "name"
	TXTKeyVersion  = "version"
	TXTKeyProtocol = "proto"
)

// Discovery errors.
var (
	ErrEmptyName     = errors.New("server name is empty")
	ErrInvalidPort   = errors.New("invalid port")
	ErrNoAddress     = errors.New("service has no address")
	ErrMissingRecord = errors.New("missing TXT record")
)

// ServerInfo is what a server advertises about itself.
type ServerInfo struct {
	Name     string
	Version  string
	Protocol string
	Port     uint16
}

// Validate checks the info before registration.
func (i *ServerInfo) Validate() error {
	if i.Name == "" {
		return ErrEmptyName
	}
	if i.Port == 0 {
		return ErrInvalidPort
	}
	return nil
}

// Service is a discovered server.
type Service struct {
	InstanceName string   `json:"instance"`
	Host         string   `json:"host"`
	Port         uint16   `json:"port"`
	Addresses    []string `json:"addresses"`
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Protocol     string   `json:"proto,omitempty"`
}

// Address returns a dialable host:port for the service. IPv4 addresses are
// preferred, then IPv6, then the advertised host name.
func (s *Service) Address() (string, error) {
	port := strconv.Itoa(int(s.Port))

	var v6 string
	for _, a := range s.Addresses {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return net.JoinHostPort(a, port), nil
		}
		if v6 == "" {
			v6 = a
		}
	}
	if v6 != "" {
		return net.JoinHostPort(v6, port), nil
	}
	if s.Host != "" {
		return net.JoinHostPort(s.Host, port), nil
	}
	return "", ErrNoAddress
}
