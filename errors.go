// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import "errors"

// Sentinel errors surfaced to callers of Client.RPCCall. Internal recovery
// paths (bad_server_salt, bad_msg_notification error 32) never reach the
// caller as errors; they are retried transparently.
var (
	// ErrMissingConstructor is returned when a request map passed to
	// RPCCall has no "_cons" constructor tag.
	ErrMissingConstructor = errors.New("mtproto: \"_cons\" attribute is required in message")

	// ErrInterrupted is returned on a pending response channel when the
	// session is torn down (Disconnect, a fatal read error, or explicit
	// deregistration) before a result arrived.
	ErrInterrupted = errors.New("mtproto: request interrupted")

	// ErrWriteTimeout is returned when a transport write did not complete
	// within the write deadline.
	ErrWriteTimeout = errors.New("mtproto: write did not complete in time")

	// ErrResponseTimeout is returned when no rpc_result arrived within the
	// response deadline.
	ErrResponseTimeout = errors.New("mtproto: response timed out")

	// ErrClientClosed reports that a connection has been closed. Client
	// itself never returns it: an RPCCall made after Disconnect lazily
	// starts a new session instead.
	ErrClientClosed = errors.New("mtproto: client is disconnected")
)
