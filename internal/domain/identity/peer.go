package identity

import (
	"fmt"
	"net"
)

// PeerResolver resolves identity from kernel peer credentials on a unix
// socket and the catalog.
type PeerResolver struct {
	catalog *Catalog

	// Swappable for tests.
	peerPID    func(net.Conn) (int32, error)
	executable func(pid int32) (string, error)
}

// NewPeerResolver creates a resolver backed by catalog.
func NewPeerResolver(catalog *Catalog) *PeerResolver {
	return &PeerResolver{
		catalog:    catalog,
		peerPID:    peerPID,
		executable: executablePath,
	}
}

// Resolve implements Resolver.
func (r *PeerResolver) Resolve(conn net.Conn) (Identity, error) {
	pid, err := r.peerPID(conn)
	if err != nil {
		return Identity{}, fmt.Errorf("read peer credentials: %w", err)
	}
	exe, err := r.executable(pid)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve executable for pid %d: %w", pid, err)
	}
	m, err := r.catalog.Match(exe)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		BundleID:    m.BundleID,
		DisplayName: m.DisplayName,
		PID:         pid,
		Executable:  exe,
	}, nil
}
