// Package logging constructs slog loggers for the CLI and worker daemon.
//
// Console and JSON handlers are selected through config, output fans out to
// stdout plus the daemon log file, and standardized field keys keep work-item
// and worker identifiers greppable across components.
package logging
