//go:build !linux

package stream

import (
	"fmt"
	"net"
)

// listenTCP falls back to net.Listen where the backlog cannot be set
func listenTCP(port, backlog int) (net.Listener, error) {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return ln, nil
}
