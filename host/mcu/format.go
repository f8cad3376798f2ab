package mcu

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"adsgopper/protocol"
)

// ParamType is the wire type of one message parameter
type ParamType int

const (
	ParamUint32 ParamType = iota // %u
	ParamInt32                   // %i
	ParamUint16                  // %hu
	ParamInt16                   // %hi
	ParamByte                    // %c
	ParamBuffer                  // %*s, %.*s
	ParamString                  // %s
)

var paramTypes = map[string]ParamType{
	"%u":   ParamUint32,
	"%i":   ParamInt32,
	"%hu":  ParamUint16,
	"%hi":  ParamInt16,
	"%c":   ParamByte,
	"%*s":  ParamBuffer,
	"%.*s": ParamBuffer,
	"%s":   ParamString,
}

func (t ParamType) isBuffer() bool {
	return t == ParamBuffer || t == ParamString
}

// normalize narrows a decoded VLQ to the parameter's width
func (t ParamType) normalize(v int32) int64 {
	switch t {
	case ParamUint32:
		return int64(uint32(v))
	case ParamUint16:
		return int64(uint16(v))
	case ParamInt16:
		return int64(int16(v))
	case ParamByte:
		return int64(uint8(v))
	}
	return int64(v)
}

type Param struct {
	Name string
	Type ParamType
}

// MessageFormat is a parsed dictionary entry such as
// "ads1118_result oid=%c temperature=%hi sensor_index=%c value=%hi"
type MessageFormat struct {
	ID     uint16
	Name   string
	Params []Param
}

func ParseFormat(id uint16, signature string) (*MessageFormat, error) {
	fields := strings.Fields(signature)
	if len(fields) == 0 {
		return nil, fmt.Errorf("message %d: empty format", id)
	}
	mf := &MessageFormat{ID: id, Name: fields[0]}
	for _, f := range fields[1:] {
		name, spec, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: malformed parameter %q", mf.Name, f)
		}
		t, ok := paramTypes[spec]
		if !ok {
			return nil, fmt.Errorf("%s: unknown type %q for %s", mf.Name, spec, name)
		}
		mf.Params = append(mf.Params, Param{Name: name, Type: t})
	}
	return mf, nil
}

// Params holds decoded response values. Integers are int64, %*s values
// []byte and %s values string. "#name" carries the message name.
type Params map[string]any

func (p Params) Name() string {
	s, _ := p["#name"].(string)
	return s
}

func (p Params) Int(name string) int64 {
	v, _ := p[name].(int64)
	return v
}

func (p Params) Bytes(name string) []byte {
	switch v := p[name].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

// Decode reads the message's parameters from data, which must already be
// past the message id
func (f *MessageFormat) Decode(data *[]byte) (Params, error) {
	p := Params{"#name": f.Name}
	for _, prm := range f.Params {
		if prm.Type.isBuffer() {
			b, err := protocol.DecodeVLQBytes(data)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", f.Name, prm.Name, err)
			}
			if prm.Type == ParamString {
				p[prm.Name] = string(b)
			} else {
				p[prm.Name] = append([]byte(nil), b...)
			}
			continue
		}
		v, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", f.Name, prm.Name, err)
		}
		p[prm.Name] = prm.Type.normalize(v)
	}
	return p, nil
}

type encodedArg struct {
	n   int32
	buf []byte
}

// Encode checks args against the format and returns the argument writer
// for HostTransport.SendCommand. Buffers accept []byte or string.
func (f *MessageFormat) Encode(args ...any) (func(protocol.OutputBuffer), error) {
	if len(args) != len(f.Params) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", f.Name, len(args), len(f.Params))
	}
	vals := make([]encodedArg, len(args))
	for i, a := range args {
		prm := f.Params[i]
		if prm.Type.isBuffer() {
			switch v := a.(type) {
			case []byte:
				vals[i].buf = v
			case string:
				vals[i].buf = []byte(v)
			default:
				return nil, fmt.Errorf("%s %s: %T is not a buffer", f.Name, prm.Name, a)
			}
			continue
		}
		n, ok := toInt64(a)
		if !ok {
			return nil, fmt.Errorf("%s %s: %T is not an integer", f.Name, prm.Name, a)
		}
		vals[i].n = int32(n)
	}
	return f.writer(vals), nil
}

// EncodeLine parses a text command in dictionary form, for example
// "config_ads1x18 oid=1 spi_oid=0 data_rate=4 response_interval_ms=200".
// Integers accept any strconv base prefix and buffers are hex.
func (f *MessageFormat) EncodeLine(line string) (func(protocol.OutputBuffer), error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != f.Name {
		return nil, fmt.Errorf("%q is not a %s command", line, f.Name)
	}
	given := make(map[string]string, len(fields)-1)
	for _, fld := range fields[1:] {
		k, v, ok := strings.Cut(fld, "=")
		if !ok {
			return nil, fmt.Errorf("%s: malformed argument %q", f.Name, fld)
		}
		given[k] = v
	}
	vals := make([]encodedArg, len(f.Params))
	for i, prm := range f.Params {
		s, ok := given[prm.Name]
		if !ok {
			return nil, fmt.Errorf("%s: missing %s", f.Name, prm.Name)
		}
		delete(given, prm.Name)
		switch prm.Type {
		case ParamBuffer:
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", f.Name, prm.Name, err)
			}
			vals[i].buf = b
		case ParamString:
			vals[i].buf = []byte(s)
		default:
			n, err := strconv.ParseInt(s, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", f.Name, prm.Name, err)
			}
			vals[i].n = int32(n)
		}
	}
	for k := range given {
		return nil, fmt.Errorf("%s: unknown parameter %s", f.Name, k)
	}
	return f.writer(vals), nil
}

func (f *MessageFormat) writer(vals []encodedArg) func(protocol.OutputBuffer) {
	return func(out protocol.OutputBuffer) {
		for i, prm := range f.Params {
			if prm.Type.isBuffer() {
				protocol.EncodeVLQBytes(out, vals[i].buf)
			} else {
				protocol.EncodeVLQInt(out, vals[i].n)
			}
		}
	}
}

func toInt64(a any) (int64, bool) {
	switch v := a.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
