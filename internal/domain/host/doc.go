/*
Package host is the coordination core of the extension surface.

All mutable state (the authorization ledger, the three presentation
regions, the connection registry and the runtime settings) is owned by
Core and touched only from its Coordinator goroutine. Transports hand
requests to an Instance, which queues them on the coordinator in arrival
order and delivers the reply through a callback once the request has run.
The same ordering covers requests from different connections, so a
present followed by a dismiss is always observed in the order the two were
queued.

Notifications to extensions are fire-and-forget. They go through the
Registry, which fans out to every live connection of an identity and
prunes dead handles as it goes.
*/
package host
