// Package logger provides structured logging for the promotion engine
// built on zerolog.
//
// A global logger is initialized once from the logging configuration and
// shared via GetLogger(); components that need scoped fields derive child
// loggers with WithField/WithFields. Console output is human readable,
// file output (when configured) is appended alongside it.
package logger
