package client

import (
	"errors"
	"net"
)

var (
	// ErrTransportClosed is returned by a Transport that cannot be used any
	// more. The peer is taken out of service.
	ErrTransportClosed = net.ErrClosed

	errTimeout = errors.New("no acceptable response received in time")
)
