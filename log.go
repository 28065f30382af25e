package h2

import "go.uber.org/zap"

// nopLogger backs every Session that wasn't given a *zap.Logger via
// WithLogger, so the core never forces a caller to configure logging.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}
