package pattern

import "fmt"

// lengthPrefixed reads an unsigned length of declared width, then
// consumes exactly that many payload bytes.
type lengthPrefixed struct {
	width     int // bytes
	little    bool
	maxLength int
}

func newLengthPrefixed(cfg map[string]any) (*lengthPrefixed, error) {
	widthBits, ok := configInt(cfg, "width", 32)
	if !ok {
		return nil, invalidValue(LengthPrefixed, "width", "8, 16, 32 or 64", cfg["width"])
	}
	switch widthBits {
	case 8, 16, 32, 64:
	default:
		return nil, invalidValue(LengthPrefixed, "width", "8, 16, 32 or 64", widthBits)
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(LengthPrefixed, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	maxLength, ok := configInt(cfg, "max_length", 0)
	if !ok || maxLength < 0 {
		return nil, invalidValue(LengthPrefixed, "max_length", "non-negative integer", cfg["max_length"])
	}

	return &lengthPrefixed{width: widthBits / 8, little: order == "little", maxLength: maxLength}, nil
}

func (p *lengthPrefixed) Kind() Kind { return LengthPrefixed }

func (p *lengthPrefixed) RequiredConfig() []string { return nil }

func (p *lengthPrefixed) OptionalConfig() map[string]any {
	return map[string]any{"width": 32, "byte_order": "big", "max_length": 0}
}

func (p *lengthPrefixed) Match(data []byte, offset int) MatchResult {
	if offset+p.width > len(data) {
		return failure(LengthPrefixed, offset, "insufficient data for length prefix")
	}

	length := readUint(data, offset, p.width, p.little)
	if p.maxLength > 0 && length > uint64(p.maxLength) {
		return failure(LengthPrefixed, offset, fmt.Sprintf("declared length %d exceeds maximum %d", length, p.maxLength))
	}

	payloadStart := offset + p.width
	payloadEnd := payloadStart + int(length)
	if payloadEnd > len(data) || payloadEnd < payloadStart {
		return failure(LengthPrefixed, offset, fmt.Sprintf(
			"declared length %d exceeds remaining input %d", length, len(data)-payloadStart))
	}

	payload := make([]byte, length)
	copy(payload, data[payloadStart:payloadEnd])

	return success(map[string]any{
		"length":      int(length),
		"data":        payload,
		"data_offset": payloadStart,
	}, p.width+int(length), map[string]any{
		"pattern": string(LengthPrefixed),
	})
}
