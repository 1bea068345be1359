/*
Package resilience provides the circuit breaker that guards outbound
requests from the shared session.

# Overview

A Breaker moves between three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open

A Group holds one breaker per host so a single failing upstream does not
stop traffic to the others.

# Usage

	group := resilience.NewGroup("session", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		IsSuccessful: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})

	resp, err := resilience.Do(group.Get(host), func() (*resty.Response, error) {
		return req.Execute(method, url)
	})
*/
package resilience
