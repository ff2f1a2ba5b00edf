// Package rpclog is a thin wrapper around the standard log package so that
// every per-connection server log line carries a consistent
// "rpcserver[conn=N]:" prefix, the way the teacher's log lines name the
// service method being handled.
package rpclog

import (
	"log"
	"strconv"
)

// Logger prefixes every line with a fixed connection id.
type Logger struct {
	prefix string
}

// ForConn returns a Logger that prefixes its output with connID.
func ForConn(connID uint64) Logger {
	return Logger{prefix: "rpcserver[conn=" + strconv.FormatUint(connID, 10) + "]: "}
}

// Printf logs a formatted line through the standard logger.
func (l Logger) Printf(format string, args ...any) {
	log.Printf(l.prefix+format, args...)
}
