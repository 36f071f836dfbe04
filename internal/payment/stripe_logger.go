package payment

import (
	"fmt"

	"github.com/rs/zerolog"
)

// stripeLogger adapts zerolog to stripe.LeveledLoggerInterface.
type stripeLogger struct {
	logger zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l stripeLogger) Infof(format string, v ...interface{}) {
	l.logger.Info().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l stripeLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}

func (l stripeLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Str("component", "stripe").Msg(fmt.Sprintf(format, v...))
}
