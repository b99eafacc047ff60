// Package logging provides structured logging for Hearth Core.
//
// It wraps the standard library log/slog with configuration-driven
// format and level selection, plus default service/version fields.
package logging
