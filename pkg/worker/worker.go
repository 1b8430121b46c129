// Package worker defines the immutable value types that describe a single
// cache worker: its identity on the consistent-hash ring and the network
// address a client uses to reach it.
package worker

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
)

// Default WorkerNetAddress field values, used when a registry document omits
// a field. Mirrors the defaults the cluster's own workers advertise.
const (
	DefaultHost             = "localhost"
	DefaultContainerHost    = ""
	DefaultRPCPort          = 29999
	DefaultDataPort         = 29997
	DefaultSecureRPCPort    = 0
	DefaultNettyDataPort    = 29997
	DefaultWebPort          = 30000
	DefaultDomainSocketPath = ""
	DefaultHTTPServerPort   = 28080

	// DefaultIdentifierVersion is the WorkerIdentity version assigned to
	// identities synthesized from a bare hostname (static worker-host mode).
	DefaultIdentifierVersion = 1
)

// Identity is an immutable, comparable pair identifying a worker on the ring.
// Identifier is an opaque 16-byte tag: a UUID when synthesized from a
// hostname, or whatever binary tag the registry assigned the worker.
type Identity struct {
	Version    uint32
	Identifier [16]byte
}

// NewIdentityFromHostname synthesizes a WorkerIdentity for a worker known
// only by hostname (static workerHosts configuration). The identifier is a
// UUIDv3 over the null namespace with the hostname as name, matching the
// scheme used when the cluster itself assigns identities to hostname-only
// workers.
func NewIdentityFromHostname(host string) Identity {
	u := uuid.NewMD5(uuid.Nil, []byte(host))
	var id Identity
	id.Version = DefaultIdentifierVersion
	copy(id.Identifier[:], u[:])
	return id
}

// IdentityFromHex builds an Identity from a version and a hex-encoded
// 16-byte identifier, as found in a registry JSON document.
func IdentityFromHex(version uint32, hexIdentifier string) (Identity, error) {
	raw, err := hex.DecodeString(hexIdentifier)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	id.Version = version
	copy(id.Identifier[:], raw)
	return id, nil
}

// Bytes returns the little-endian encoded "identifier ‖ version" byte
// sequence used as the prefix of the ring's virtual-node hash input.
func (id Identity) Bytes() []byte {
	buf := make([]byte, 0, 16+4)
	buf = append(buf, id.Identifier[:]...)
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], id.Version)
	return append(buf, v[:]...)
}

// NetAddress is the network-reachable address of a worker. Only Host and
// HTTPServerPort are load-bearing for the client core; the remaining fields
// flow through unchanged for callers that need the full wire record.
type NetAddress struct {
	Host             string
	ContainerHost    string
	RPCPort          int
	DataPort         int
	SecureRPCPort    int
	NettyDataPort    int
	WebPort          int
	DomainSocketPath string
	HTTPServerPort   int
}

// DefaultNetAddress returns a NetAddress with every field set to its
// documented default.
func DefaultNetAddress() NetAddress {
	return NetAddress{
		Host:             DefaultHost,
		ContainerHost:    DefaultContainerHost,
		RPCPort:          DefaultRPCPort,
		DataPort:         DefaultDataPort,
		SecureRPCPort:    DefaultSecureRPCPort,
		NettyDataPort:    DefaultNettyDataPort,
		WebPort:          DefaultWebPort,
		DomainSocketPath: DefaultDomainSocketPath,
		HTTPServerPort:   DefaultHTTPServerPort,
	}
}

// Entity pairs a worker's Identity with its NetAddress. Two entities are
// equal iff both fields are equal.
type Entity struct {
	Identity Identity
	Address  NetAddress
}

// FromHostAndPort synthesizes an Entity for a worker known only by hostname
// and HTTP port, used for the static workerHosts configuration source.
func FromHostAndPort(host string, httpPort int) Entity {
	addr := DefaultNetAddress()
	addr.Host = host
	addr.HTTPServerPort = httpPort
	return Entity{
		Identity: NewIdentityFromHostname(host),
		Address:  addr,
	}
}
