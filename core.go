package gelf

import (
	"context"
	"time"

	"go.uber.org/zap/zapcore"
)

type (
	// CoreOption configures a core built by NewCore.
	CoreOption func(*core)

	// core implements zapcore.Core on top of a Sender, one send per entry.
	core struct {
		zapcore.LevelEnabler
		sender  Sender
		fields  []zapcore.Field
		timeout time.Duration
	}
)

// CoreTimeout bounds each send made by the core. Zero leaves it to the
// client's request timeout.
func CoreTimeout(d time.Duration) CoreOption {
	return func(c *core) {
		c.timeout = d
	}
}

// NewCore returns a zap core delivering every enabled entry through sender.
// The message becomes short_message, the stack full_message, and the
// logger name, caller and fields become additional fields.
func NewCore(sender Sender, enabler zapcore.LevelEnabler, options ...CoreOption) zapcore.Core {
	var c = &core{
		LevelEnabler: enabler,
		sender:       sender,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// With implements zapcore.Core.
func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// Check implements zapcore.Core.
func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core.
func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	data := Fields(enc.Fields)
	if ent.LoggerName != "" {
		data["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		data["caller"] = ent.Caller.TrimmedPath()
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	_, err := c.sender.SendFields(ctx, ent.Message, ent.Stack, data, WithLevel(syslogLevel(ent.Level)))
	return err
}

// Sync implements zapcore.Core. Sends are synchronous, so there is
// nothing to flush.
func (c *core) Sync() error {
	return nil
}

func syslogLevel(l zapcore.Level) int32 {
	switch l {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInformational
	case zapcore.WarnLevel:
		return LevelWarning
	case zapcore.ErrorLevel:
		return LevelError
	case zapcore.DPanicLevel:
		return LevelCritical
	case zapcore.PanicLevel:
		return LevelAlert
	case zapcore.FatalLevel:
		return LevelEmergency
	default:
		return LevelInformational
	}
}
