// Command netctl submits one request through the engine and prints the
// result.
//
// Usage:
//
//	netctl https://api.example.com/widgets/1
//	netctl -X POST -H 'Content-Type: application/json' -d @widget.json https://api.example.com/widgets
//	netctl --kind image -o logo.png https://cdn.example.com/logo.png
//	netctl -u alice --password secret --pin-dir ./pins https://internal.example.com/reports
//
// JSON responses that parse as documents are re-encoded with indentation.
// Settings not given as flags come from the NETCTL_* environment variables.
package main
