// Package registry tracks in-flight tasks for one controller: which request
// and delegate each task belongs to, and the body bytes received so far.
// Both structures drop their entry on the task's terminal event.
package registry
