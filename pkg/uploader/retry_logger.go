package uploader

import (
	"github.com/hashicorp/go-retryablehttp"

	"github.com/bft-labs/formship/pkg/log"
)

// retryLogger routes retryablehttp's key/value logging into log.Logger.
// Its request chatter is demoted to debug; retries are reported separately.
type retryLogger struct {
	logger log.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.logger.Error(msg, log.KeyValues(keysAndValues...)...)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.logger.Debug(msg, log.KeyValues(keysAndValues...)...)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.logger.Debug(msg, log.KeyValues(keysAndValues...)...)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.logger.Warn(msg, log.KeyValues(keysAndValues...)...)
}

var _ retryablehttp.LeveledLogger = retryLogger{}
