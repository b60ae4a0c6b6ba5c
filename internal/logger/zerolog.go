package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger on top of zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerolog writes one JSON object per entry to w.
func NewZerolog(w io.Writer, level zerolog.Level) *ZerologAdapter {
	return &ZerologAdapter{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// NewConsoleLogger writes human-readable lines to w. Commands pass stderr so
// stdout carries only their output.
func NewConsoleLogger(w io.Writer, level zerolog.Level) *ZerologAdapter {
	return NewZerolog(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}, level)
}

func NewNop() *ZerologAdapter {
	return &ZerologAdapter{logger: zerolog.Nop()}
}

func (z *ZerologAdapter) Info(component, message string, fields map[string]interface{}) {
	emit(z.logger.Info(), component, fields).Msg(message)
}

func (z *ZerologAdapter) Warning(component, message string, fields map[string]interface{}) {
	emit(z.logger.Warn(), component, fields).Msg(message)
}

func (z *ZerologAdapter) Debug(component, message string, fields map[string]interface{}) {
	emit(z.logger.Debug(), component, fields).Msg(message)
}

func (z *ZerologAdapter) Error(component string, err error, fields map[string]interface{}) {
	emit(z.logger.Error().Err(err), component, fields).Msg("operation failed")
}

// emit tags the event with its component and fields. Disabled levels return
// a nil event, which zerolog treats as a no-op.
func emit(event *zerolog.Event, component string, fields map[string]interface{}) *zerolog.Event {
	if event == nil {
		return nil
	}
	return event.Str("component", component).Fields(fields)
}
