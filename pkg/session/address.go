package session

import (
	"fmt"
	"net"
	"strconv"
)

// ValidateAddress checks that address is host:port with a non-empty host and
// a port in 1..65535.
func ValidateAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}
	if host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidAddress, address)
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || n == 0 {
		return fmt.Errorf("%w: %q: bad port %q", ErrInvalidAddress, address, port)
	}
	return nil
}
