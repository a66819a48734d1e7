package identity

import (
	"errors"
	"net"
)

var (
	ErrUnresolved     = errors.New("identity: no manifest matches peer")
	ErrAmbiguous      = errors.New("identity: peer matches more than one manifest")
	ErrDigestMismatch = errors.New("identity: executable digest mismatch")
	ErrUnsupported    = errors.New("identity: peer credentials unsupported on this platform")
)

// Identity is the verified identity of a connected extension process.
type Identity struct {
	BundleID    string `json:"bundleId"`
	DisplayName string `json:"displayName"`
	PID         int32  `json:"pid,omitempty"`
	Executable  string `json:"executable,omitempty"`
}

func (i Identity) String() string { return i.BundleID }

// Resolver maps an accepted connection to an identity. Any error rejects
// the connection.
type Resolver interface {
	Resolve(conn net.Conn) (Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(conn net.Conn) (Identity, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(conn net.Conn) (Identity, error) { return f(conn) }
