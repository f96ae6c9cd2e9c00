package consensus

import "go.uber.org/zap"

// newLogger builds the pool's structured logger, tagged module=pool the
// same way the retrieved dBFT consensus package tags its own logger.
func newLogger() (*zap.Logger, error) {
	cc := zap.NewDevelopmentConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.Encoding = "console"
	log, err := cc.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("module", "pool")), nil
}
