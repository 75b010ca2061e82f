// Package logging centralizes zap.Logger construction so every rpcmesh
// package logs in the same structured shape instead of reaching for stdlib
// log.Printf the way the teacher's server/middleware packages used to.
package logging

import "go.uber.org/zap"

// New builds a production logger (JSON encoding, info level) for cmd/
// entrypoints and long-running server roles.
func New() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewDevelopment builds a human-readable console logger, for cmd/ tools run
// interactively (mini-rpc-cli, inspector).
func NewDevelopment() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
