//go:build !linux

package identity

import "net"

func peerPID(net.Conn) (int32, error) { return 0, ErrUnsupported }

func executablePath(int32) (string, error) { return "", ErrUnsupported }
