package client

import "errors"

var (
	// ErrUnassignable is returned by requests that no peer could accept,
	// either because the client is not connected or because every peer has
	// reached its request bound.
	ErrUnassignable = errors.New("client: request unassignable")
	// ErrRequestTimeout is returned by requests for which the server sent no
	// chunk in time. The chunk may be requested again.
	ErrRequestTimeout = errors.New("client: request timed out")
	// ErrDisconnected is returned by requests still pending when the client
	// disconnects.
	ErrDisconnected = errors.New("client: disconnected")
	// ErrPending is returned by Request.Result while the request is not
	// finished.
	ErrPending = errors.New("client: request pending")
	// ErrPeerClosed is returned when a peer closes before it has spawned.
	ErrPeerClosed = errors.New("client: peer closed")
	// ErrConnected is returned by Client.Connect if the client is already
	// connected.
	ErrConnected = errors.New("client: already connected")
)
