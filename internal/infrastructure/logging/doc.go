// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *zap.Logger and name themselves, and tag lines with
// the helpers in fields.go so one request can be followed end to end:
//
//	logger := logging.NewDefault()
//	log := logger.Component("session")
//	log.Debug("task resumed", logging.Task(id), logging.Request(req))
package logging
