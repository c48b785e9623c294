package pattern

import (
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Config accessors. Declarative documents arrive as map[string]any
// decoded from JSON or YAML, so numbers may be float64, int or
// json.Number and byte values may be hex strings. These helpers
// normalize; validation of the normalized value stays in each kind's
// constructor.

func configInt(cfg map[string]any, key string, def int) (int, bool) {
	v, ok := cfg[key]
	if !ok {
		return def, true
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func configString(cfg map[string]any, key, def string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return def, true
	}
	s, ok := v.(string)
	return s, ok
}

func configBool(cfg map[string]any, key string, def bool) (bool, bool) {
	v, ok := cfg[key]
	if !ok {
		return def, true
	}
	b, ok := v.(bool)
	return b, ok
}

// configBytes accepts raw byte slices, hex strings ("89504E47", or
// "\x89\x50\x4E\x47" with the \x escapes stripped), or plain ASCII strings that are
// not valid hex. All forms normalize to the same byte value.
func configBytes(cfg map[string]any, key string) ([]byte, bool, bool) {
	v, ok := cfg[key]
	if !ok {
		return nil, false, true
	}
	switch x := v.(type) {
	case []byte:
		return x, true, true
	case string:
		return decodeByteString(x), true, true
	default:
		return nil, false, false
	}
}

func decodeByteString(s string) []byte {
	cleaned := strings.ReplaceAll(s, "\\x", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if b, err := hex.DecodeString(cleaned); err == nil && len(cleaned) > 0 && len(cleaned)%2 == 0 {
		return b
	}
	return []byte(s)
}

// configStringSlice reads a list of strings.
func configStringSlice(cfg map[string]any, key string) ([]string, bool) {
	v, ok := cfg[key]
	if !ok {
		return nil, true
	}
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// fieldSpec is the shared shape for declarative binary field lists
// used by CHUNK_STRUCTURE, HEADER_BODY and RIFF_CHUNK.
type fieldSpec struct {
	Name      string
	Type      string // uint8|uint16|uint32|uint64|int8|int16|int32|int64|bytes|string
	Length    int    // for bytes/string
	ByteOrder string // big|little; empty inherits the pattern default
}

func configFieldSpecs(cfg map[string]any, key string) ([]fieldSpec, bool) {
	v, ok := cfg[key]
	if !ok {
		return nil, true
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	specs := make([]fieldSpec, 0, len(list))
	for _, elem := range list {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, false
		}
		spec, ok := parseFieldSpec(m)
		if !ok {
			return nil, false
		}
		specs = append(specs, spec)
	}
	return specs, true
}

func parseFieldSpec(m map[string]any) (fieldSpec, bool) {
	name, ok := configString(m, "name", "")
	if !ok || name == "" {
		return fieldSpec{}, false
	}
	typ, ok := configString(m, "type", "bytes")
	if !ok {
		return fieldSpec{}, false
	}
	length, ok := configInt(m, "length", 0)
	if !ok {
		return fieldSpec{}, false
	}
	order, ok := configString(m, "byte_order", "")
	if !ok {
		return fieldSpec{}, false
	}
	return fieldSpec{Name: name, Type: typ, Length: length, ByteOrder: order}, true
}

func fieldTypeSize(typ string, length int) int {
	switch typ {
	case "uint8", "int8":
		return 1
	case "uint16", "int16":
		return 2
	case "uint32", "int32":
		return 4
	case "uint64", "int64":
		return 8
	default: // bytes, string
		return length
	}
}
