// Package logx configures blastbot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps console
// output readable (short timestamp + short caller) and file output
// JSON-structured, and lets config reloads swap sinks without invalidating
// loggers already handed out.
package logx
