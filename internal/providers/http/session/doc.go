// Package session is the shared transport every controller submits to.
//
// A Session owns one http.Transport, the client stack built on it and a
// bounded worker pool. It does not know which controller owns a task: every
// event is delivered to every subscribed Listener, and listeners discard
// events for task ids they did not create.
//
// Subscriptions live in a slot table. Handles carry a generation, so a
// handle kept after Unsubscribe cannot remove a later subscriber that
// reused its slot.
//
// TLS handshakes are performed by the session so that each server chain is
// raised as a server-trust challenge. A listener may accept it, cancel it, or
// leave it to default handling, which verifies against the configured CA
// file or the system roots.
package session
