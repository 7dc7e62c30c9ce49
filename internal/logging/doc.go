// Package logging provides a leveled logging facade for the gallery viewer.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The initial level comes from the LOG_LEVEL (or DEBUG) environment variable.
// Output goes through zap; Configure adds a rotating log file and applies the
// configured level.
package logging
