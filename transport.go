// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import "context"

// Transport is the low-level MTProto collaborator the core session sits on
// top of. It is responsible for obfuscated TCP framing, key exchange, and
// AES-IGE encryption/decryption; the core never touches bytes directly.
//
// The core calls Read from a single read-loop goroutine, but calls Write
// from several goroutines at once (RPCCall callers, ping timer callbacks,
// and the read loop's ack flushes and recovery resubmissions), without
// holding any lock. Implementations must therefore make Write safe for
// concurrent use, and safe to call concurrently with Read; they need not be
// safe for concurrent Read/Read calls.
type Transport interface {
	// Write assigns and returns a monotonically increasing message id for
	// fields, synchronously, then asynchronously encodes and flushes the
	// frame. The returned channel receives nil (or an error) exactly once
	// and is then closed.
	Write(ctx context.Context, seqno int32, fields map[string]any) (msgID int64, writeComplete <-chan error)

	// Read blocks until the next decrypted, deserialized server message is
	// available. It returns an error when the connection is lost or ctx is
	// done.
	Read(ctx context.Context) (Message, error)

	// SetServerSalt installs a new session salt, as instructed by a
	// bad_server_salt notification.
	SetServerSalt(salt int64)

	// ServerSalt returns the session salt currently in use.
	ServerSalt() int64

	// Stop terminates the connection. Subsequent Read/Write calls fail.
	Stop() error
}

// Message is a decoded, decrypted server message as delivered by Transport.Read.
type Message struct {
	MsgID int64
	Seqno int32
	Body  Structure
}

// Structure is a deserialized TL value: a constructor tag plus named
// fields. The TL (de)serializer that produces these is out of scope for the
// core; the core only ever compares constructor tags and reads the handful
// of fields listed below.
type Structure interface {
	// Constructor returns the TL constructor name, e.g. "rpc_result".
	Constructor() string

	// AsMap converts the structure to a plain field-name to value mapping,
	// suitable for returning to an RPCCall caller.
	AsMap() map[string]any

	// The remaining accessors are only meaningful for the constructors
	// that carry the corresponding field; callers must check Constructor()
	// first. Implementations may panic if called on the wrong constructor,
	// matching how the original TL layer exposes attributes.
	MsgID() int64
	PingID() int64
	ErrorCode() int32
	NewServerSalt() int64
	BadMsgID() int64
	ReqMsgID() int64
	Result() Structure
	Messages() []Message
	PackedData() Structure
}
