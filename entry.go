package gelf

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Syslog severity levels, as used by the GELF level field.
const (
	LevelEmergency int32 = iota
	LevelAlert
	LevelCritical
	LevelError
	LevelWarning
	LevelNotice
	LevelInformational
	LevelDebug
)

// Fields is a flat set of additional fields, keyed without the leading
// underscore.
type Fields map[string]any

// Entry is a single GELF 1.1 record.
type Entry struct {
	Version      string `json:"version"`
	Host         string `json:"host"`
	Facility     string `json:"_facility"`
	Timestamp    int64  `json:"timestamp"`
	ShortMessage string `json:"short_message"`
	FullMessage  string `json:"full_message,omitempty"`
	Level        *int32 `json:"level,omitempty"`

	// Extra holds the additional fields, each key already prefixed with "_".
	Extra map[string]any `json:"-"`
}

// reservedFields are written by the builder. GELF also forbids an "_id"
// additional field, which Graylog would drop.
var reservedFields = map[string]struct{}{
	"version":       {},
	"host":          {},
	"_facility":     {},
	"timestamp":     {},
	"short_message": {},
	"full_message":  {},
	"level":         {},
	"_id":           {},
}

// IsReserved reports whether name is set by the builder and never taken
// from caller data.
func IsReserved(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// entryAlias drops the methods of Entry, so marshalling it does not recurse.
type entryAlias Entry

// MarshalJSON writes the fixed fields followed by Extra in a single object.
func (e *Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.MarshalJSONBuf(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSONBuf appends the compact JSON form of e to buf.
func (e *Entry) MarshalJSONBuf(buf *bytes.Buffer) error {
	b, err := json.Marshal((*entryAlias)(e))
	if err != nil {
		return err
	}

	extra := make(map[string]any, len(e.Extra))
	for k, v := range e.Extra {
		if IsReserved(k) {
			continue
		}
		extra[k] = v
	}

	if len(extra) == 0 {
		_, err = buf.Write(b)
		return err
	}

	// write up until the final }
	if _, err = buf.Write(b[:len(b)-1]); err != nil {
		return err
	}

	eb, err := json.Marshal(extra)
	if err != nil {
		return err
	}

	if err = buf.WriteByte(','); err != nil {
		return err
	}
	// the extra object without its braces
	if _, err = buf.Write(eb[1 : len(eb)-1]); err != nil {
		return err
	}

	return buf.WriteByte('}')
}

// UnmarshalJSON reads a GELF record, collecting every "_" key other than
// _facility into Extra.
func (e *Entry) UnmarshalJSON(data []byte) error {
	raw := make(map[string]any, 16)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{}
	for k, v := range raw {
		ok := true
		switch k {
		case "version":
			e.Version, ok = v.(string)
		case "host":
			e.Host, ok = v.(string)
		case "_facility":
			e.Facility, ok = v.(string)
		case "short_message":
			e.ShortMessage, ok = v.(string)
		case "full_message":
			e.FullMessage, ok = v.(string)
		case "timestamp":
			var ts float64
			ts, ok = v.(float64)
			e.Timestamp = int64(ts)
		case "level":
			var level float64
			level, ok = v.(float64)
			l := int32(level)
			e.Level = &l
		default:
			if len(k) > 0 && k[0] == '_' {
				if e.Extra == nil {
					e.Extra = make(map[string]any, 1)
				}
				e.Extra[k] = v
			}
		}

		if !ok {
			return fmt.Errorf("gelf: invalid type for field %s", k)
		}
	}

	return nil
}
