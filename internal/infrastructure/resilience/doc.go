/*
Package resilience provides a circuit breaker for outbound notification
delivery.

Each extension connection owns one breaker. A connection whose send queue
keeps overflowing (the extension stopped reading) trips the breaker, and
further notifications are dropped immediately instead of piling up until
the transport notices the peer is gone. After Timeout the breaker lets a
trial call through (half-open); MaxRequests consecutive successes close it.

	breaker := resilience.New("conn_01H...", resilience.Settings{
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 8
		},
	})

	err := breaker.Do(func() error { return enqueue(frame) })
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// dropped without trying
	}
*/
package resilience
