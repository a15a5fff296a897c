// Package version provides protocol version parsing, comparison, and the
// protocol identifiers advertised over mDNS.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the wire protocol version implemented by this library.
const Current = "1.0"

// protocolPrefix prefixes the advertised protocol identifier.
const protocolPrefix = "ntb/"

// ProtocolVersion represents a parsed "major.minor" protocol version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (ProtocolVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// ProtocolName returns the advertised protocol identifier for a major
// version: "ntb/N".
func ProtocolName(major uint16) string {
	return fmt.Sprintf("%s%d", protocolPrefix, major)
}

// MajorFromProtocol extracts the major version from a protocol identifier.
func MajorFromProtocol(proto string) (uint16, error) {
	if !strings.HasPrefix(proto, protocolPrefix) {
		return 0, fmt.Errorf("not an ntbridge protocol: %q", proto)
	}

	suffix := proto[len(protocolPrefix):]
	if suffix == "" {
		return 0, fmt.Errorf("empty major version in protocol: %q", proto)
	}

	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in protocol %q: %w", proto, err)
	}

	return uint16(major), nil
}

// CurrentProtocol returns the identifier of the current protocol.
func CurrentProtocol() string {
	current, _ := Parse(Current)
	return ProtocolName(current.Major)
}

// Supports reports whether proto names a protocol this library speaks.
// Servers that advertise no protocol are assumed compatible.
func Supports(proto string) bool {
	if proto == "" {
		return true
	}
	major, err := MajorFromProtocol(proto)
	if err != nil {
		return false
	}
	current, _ := Parse(Current)
	return major == current.Major
}
