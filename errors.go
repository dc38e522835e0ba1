package wsroom

import "errors"

var (
	// ErrNoEndpoint is returned by NewSocket when neither an endpoint nor an
	// origin to derive one from was supplied.
	ErrNoEndpoint = errors.New("wsroom: no endpoint or origin configured")

	// ErrSocketClosed is returned when a closed socket is asked to connect.
	ErrSocketClosed = errors.New("wsroom: socket is closed")

	// ErrTransportNotOpen is returned by a transport asked to write before
	// its handshake completed or after it was closed.
	ErrTransportNotOpen = errors.New("wsroom: transport is not open")
)
