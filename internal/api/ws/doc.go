/*
Package ws serves the extension socket.

Extensions connect to a unix socket and upgrade to a websocket at
/v1/connect. Before the upgrade the listener resolves the peer's identity
from the raw socket; a connection that cannot be resolved is refused with
403 and never reaches the host core.

Each accepted connection gets a read pump, which decodes requests and hands
them to its host.Instance in arrival order, and a write pump, which drains a
bounded send queue shared by replies and notifications. Nothing on the
coordinator ever blocks on a slow extension: a full queue drops the frame
and a circuit breaker stops notification attempts to a connection that
keeps failing.
*/
package ws
