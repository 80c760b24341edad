package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// zeroLogger adapts zerolog to bot.Logger.
type zeroLogger struct {
	log zerolog.Logger
}

func (l *zeroLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l *zeroLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *zeroLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l *zeroLogger) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

// newLogger logs to stderr, or to a rotated file when logFile is set. It also becomes the
// global zerolog logger.
func newLogger(logFile, level string) (*zeroLogger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	var (
		out    io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out, closer = rotating, rotating
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return &zeroLogger{log: logger}, closer, nil
}

// logNotifier reports persistent failures in the log, there being no one else to tell.
type logNotifier struct {
	logger *zeroLogger
}

func (n *logNotifier) Notify(userID, message string) {
	n.logger.log.Warn().Str("user", userID).Msg(message)
}
