// Copyright 2012 Apcera Inc. All rights reserved.

package mtproto

import "crypto/rsa"

// AuthKey is the long-lived credential consumed by the transport. It is
// opaque to the core: the core never inspects its bytes, only threads it
// through to the transport factory.
type AuthKey []byte

// Datacenter describes a single Telegram datacenter endpoint. It is
// immutable once constructed and is only used by the core to build a
// Transport via the injected TransportFactory option.
type Datacenter struct {
	ID      int32
	Address string
	Port    int
	RSA     *rsa.PublicKey
}

// TransportFactory builds the low-level Transport for a Datacenter/AuthKey
// pair. The concrete factory (obfuscated TCP framing, AES-IGE, SOCKS5
// wiring) is an external collaborator out of the core's scope; tests inject
// a fake Transport directly via WithTransportFactory.
type TransportFactory func(dc Datacenter, authKey AuthKey) (Transport, error)
