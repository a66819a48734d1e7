// Package id provides ULID generation for host-side identifiers.
//
// Identifiers are lexicographically sortable and carry a short type prefix
// so log lines stay readable:
//   - conn_*  one live extension connection
//   - req_*   one traced operation (diagnostics spans)
//   - span_*  one span inside a trace
package id

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConnectionID identifies one accepted extension connection.
type ConnectionID string

// RequestID identifies a traced operation.
type RequestID string

// SpanID identifies a span within a trace.
type SpanID string

const (
	ConnectionPrefix = "conn"
	RequestPrefix    = "req"
	SpanPrefix       = "span"
)

// WithPrefix returns prefix, an underscore and a fresh ULID. ulid.Make
// draws from a process-wide monotonic source, so ids minted within the
// same millisecond still sort in creation order.
func WithPrefix(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

// NewConnectionID generates a new connection ID.
func NewConnectionID() ConnectionID { return ConnectionID(WithPrefix(ConnectionPrefix)) }

// NewRequestID generates a new request ID.
func NewRequestID() RequestID { return RequestID(WithPrefix(RequestPrefix)) }

// NewSpanID generates a new span ID.
func NewSpanID() SpanID { return SpanID(WithPrefix(SpanPrefix)) }

func (id ConnectionID) String() string { return string(id) }
func (id RequestID) String() string    { return string(id) }
func (id SpanID) String() string       { return string(id) }

// Timestamp extracts the creation time from a prefixed or bare ULID.
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
