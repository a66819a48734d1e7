/*
Package protocol defines the wire contract between the host and extensions.

Frames are JSON text messages carried over a websocket. Three frame types
exist:

	request       extension -> host, carries seq, method and params
	reply         host -> extension, echoes seq, carries ok plus results
	notification  host -> extension, unsolicited, no reply expected

Every request gets exactly one reply unless the connection dies first.
Failures travel on the reply itself as a structured Error; there is no
separate fault channel.
*/
package protocol
