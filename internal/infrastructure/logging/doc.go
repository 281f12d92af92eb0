// Package logging provides structured logging for TermFleet Core.
//
// It wraps the standard library's log/slog with configuration-driven
// format and level selection, and stamps every record with the service
// name and build version. Components receive a *Logger (or a narrower
// interface they define themselves) via constructor injection; there is
// no package-level logger.
package logging
