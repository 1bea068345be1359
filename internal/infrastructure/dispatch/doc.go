/*
Package dispatch provides the single serialized coordination loop of the
engine.

Workers never call caller code directly. They post completions to a
Dispatcher with Async, or block on Sync when they need an answer (a
credential or a trust decision) before the transfer can continue. The loop
never waits on a worker, so waits only flow one way. Sync takes a context
whose deadline bounds every rendezvous.

	d := dispatch.New(logger)
	defer d.Close()

	d.Async(func() { delegate.RequestDidComplete(req, body) })

	err := d.Sync(ctx, func() { user, pass, ok = delegate.CredentialForChallenge(req) })
*/
package dispatch
