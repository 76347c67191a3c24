package client

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger. It defaults to a no-op sink;
// callers that want output call UseLogger, typically once at process
// startup from cmd/daadapterd.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by the client package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
