// Package netutil holds the demo port constants §6 names, for cmd/
// programs to default to when no address flag is given.
package netutil

const (
	DefaultTopicPort    = 7070
	DefaultRPCPort      = 8080
	DefaultRegistryPort = 8899
)
