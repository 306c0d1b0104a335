package gelf

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap/zapcore"
)

// ErrEmptyShortMessage is returned when a send has no short message.
var ErrEmptyShortMessage = errors.New("gelf: short message is required")

// Builder turns messages and attachments into GELF entries. It holds no
// mutable state and is safe for concurrent use.
type Builder struct {
	Facility string
	Host     string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Build returns a new entry. data may be nil, a string (sent as _data), a
// Fields or plain map, a zapcore.ObjectMarshaler, or any value with a JSON
// object form, whose top-level members become display strings.
func (b Builder) Build(short, full string, data any) (*Entry, error) {
	e, err := b.base(short, full)
	if err != nil {
		return nil, err
	}

	if isNil(data) {
		return e, nil
	}

	switch d := data.(type) {
	case string:
		e.Extra = map[string]any{"_data": d}
	case Fields:
		e.Extra = fromMap(d)
	case map[string]any:
		e.Extra = fromMap(d)
	case map[string]string:
		e.Extra = make(map[string]any, len(d))
		for k, v := range d {
			setExtra(e.Extra, k, v)
		}
	case zapcore.ObjectMarshaler:
		enc := zapcore.NewMapObjectEncoder()
		if err := d.MarshalLogObject(enc); err != nil {
			return nil, fmt.Errorf("gelf: marshal attachment: %w", err)
		}
		e.Extra = fromMap(enc.Fields)
	default:
		e.Extra = fromObject(d)
	}

	return e, nil
}

// BuildFields is Build for a structured key/value attachment.
func (b Builder) BuildFields(short, full string, fields Fields) (*Entry, error) {
	return b.Build(short, full, fields)
}

func (b Builder) base(short, full string) (*Entry, error) {
	if short == "" {
		return nil, ErrEmptyShortMessage
	}
	if strings.TrimSpace(b.Facility) == "" {
		return nil, ErrMissingFacility
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	e := &Entry{
		Version:      Version,
		Host:         b.Host,
		Facility:     b.Facility,
		Timestamp:    now().UTC().Unix(),
		ShortMessage: short,
	}
	if strings.TrimSpace(full) != "" {
		e.FullMessage = full
	}

	return e, nil
}

func fromMap(m map[string]any) map[string]any {
	extra := make(map[string]any, len(m))
	for k, v := range m {
		setExtra(extra, k, flatten(v))
	}
	return extra
}

// fromObject dumps the JSON object form of v. Values without one end up
// in _data.
func fromObject(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"_data": fmt.Sprintf("%v", v)}
	}

	var members map[string]any
	if err := json.Unmarshal(b, &members); err != nil || members == nil {
		return map[string]any{"_data": fmt.Sprintf("%v", v)}
	}

	extra := make(map[string]any, len(members))
	for k, m := range members {
		if m == nil {
			continue
		}
		setExtra(extra, k, displayString(m))
	}
	return extra
}

// setExtra stores v under "_"+k unless it is nil or would shadow a
// reserved field.
func setExtra(extra map[string]any, k string, v any) {
	if v == nil {
		return
	}
	name := "_" + k
	if IsReserved(name) {
		return
	}
	extra[name] = v
}

// flatten keeps scalars as they are and turns anything nested into its
// compact JSON text.
func flatten(v any) any {
	if isNil(v) {
		return nil
	}

	switch x := v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return displayString(x)
	}
}

// isNil reports whether v is nil or a nil pointer, map, slice, func,
// channel or interface held in a non-nil interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func displayString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
