/*
Package challenge models authentication and TLS trust challenges and decides
how each one is answered.

A challenge resolves to exactly one Disposition:

	UseCredential           answer with a password or an accepted trust decision
	PerformDefaultHandling  let the transport apply its normal behaviour
	Cancel                  abort the request; it fails with ErrCancelled

Resolution rules:

  - A challenge that already failed once for a request is cancelled.
  - Basic and Digest ask the caller for a user and password through the
    rendezvous. No answer cancels; a caller without the capability gets
    default handling.
  - Server trust and client certificate challenges reuse a stored decision
    for the presented leaf, else evaluate the chain with the host's pinned
    certificate as the only anchor and store the decision on success. When
    that fails the caller may allow default handling; otherwise the
    challenge is cancelled.
  - Any other method gets default handling.

Pins are read per host from a directory (<host>.der or <host>.pem) or a YAML
manifest:

	pins:
	  api.example.com: api-2026.der
*/
package challenge
