// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import (
	"context"
	"sync"
)

// fakeStructure is a minimal in-memory Structure used by tests in place of
// the real TL deserializer. Only the fields the constructor under test
// actually needs are populated; an unset accessor returns its zero value
// (nil for Result and PackedData) rather than panicking, which the contract
// documented on Structure allows.
type fakeStructure struct {
	cons       string
	fields     map[string]any
	msgID      int64
	pingID     int64
	errorCode  int32
	newSalt    int64
	badMsgID   int64
	reqMsgID   int64
	result     *fakeStructure
	messages   []Message
	packedData *fakeStructure
}

func (f *fakeStructure) Constructor() string       { return f.cons }
func (f *fakeStructure) AsMap() map[string]any      { return f.fields }
func (f *fakeStructure) MsgID() int64               { return f.msgID }
func (f *fakeStructure) PingID() int64              { return f.pingID }
func (f *fakeStructure) ErrorCode() int32           { return f.errorCode }
func (f *fakeStructure) NewServerSalt() int64       { return f.newSalt }
func (f *fakeStructure) BadMsgID() int64            { return f.badMsgID }
func (f *fakeStructure) ReqMsgID() int64            { return f.reqMsgID }
func (f *fakeStructure) Messages() []Message        { return f.messages }

func (f *fakeStructure) Result() Structure {
	if f.result == nil {
		return nil
	}
	return f.result
}

func (f *fakeStructure) PackedData() Structure {
	if f.packedData == nil {
		return nil
	}
	return f.packedData
}

// fakeTransport is an in-memory stand-in for the obfuscated-TCP transport:
// writes are recorded, msg_ids are assigned sequentially starting at 1000,
// and test code feeds server messages in by pushing onto inbound and
// calling deliver or closing it.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int64
	salt    int64
	writes  []fakeWrite
	inbound chan fakeInbound
	stopped bool
}

type fakeWrite struct {
	seqno  int32
	fields map[string]any
}

type fakeInbound struct {
	msg Message
	err error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nextID:  1000,
		inbound: make(chan fakeInbound, 64),
	}
}

func (f *fakeTransport) Write(_ context.Context, seqno int32, fields map[string]any) (int64, <-chan error) {
	f.mu.Lock()
	msgID := f.nextID
	f.nextID++
	f.writes = append(f.writes, fakeWrite{seqno: seqno, fields: fields})
	f.mu.Unlock()

	done := make(chan error, 1)
	done <- nil
	close(done)
	return msgID, done
}

func (f *fakeTransport) Read(ctx context.Context) (Message, error) {
	select {
	case in, ok := <-f.inbound:
		if !ok {
			return Message{}, ErrClientClosed
		}
		return in.msg, in.err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (f *fakeTransport) SetServerSalt(salt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.salt = salt
}

func (f *fakeTransport) ServerSalt() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.salt
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true
	close(f.inbound)
	return nil
}

// deliver pushes a server message to the read loop.
func (f *fakeTransport) deliver(msg Message) {
	f.inbound <- fakeInbound{msg: msg}
}

func (f *fakeTransport) lastWrite() (fakeWrite, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return fakeWrite{}, false
	}
	return f.writes[len(f.writes)-1], true
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func newFakeTransportFactory(transports chan *fakeTransport) TransportFactory {
	return func(Datacenter, AuthKey) (Transport, error) {
		t := newFakeTransport()
		transports <- t
		return t, nil
	}
}
