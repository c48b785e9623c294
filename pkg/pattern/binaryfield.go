package pattern

// binaryField decodes a single named scalar or byte run at the current
// offset. The smallest composable unit; HEADER_BODY and the chunk
// patterns use the same field vocabulary internally.
type binaryField struct {
	spec   fieldSpec
	little bool
}

func newBinaryField(cfg map[string]any) (*binaryField, error) {
	spec, ok := parseFieldSpec(cfg)
	if !ok {
		if _, present := cfg["name"]; !present {
			return nil, missingKey(BinaryField, "name")
		}
		return nil, invalidValue(BinaryField, "name", "field spec", cfg)
	}

	switch spec.Type {
	case "uint8", "uint16", "uint32", "uint64", "int8", "int16", "int32", "int64":
	case "bytes", "string":
		if spec.Length <= 0 {
			return nil, invalidValue(BinaryField, "length", "positive integer for bytes/string fields", spec.Length)
		}
	default:
		return nil, invalidValue(BinaryField, "type", "integer, bytes or string type", spec.Type)
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(BinaryField, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	return &binaryField{spec: spec, little: order == "little"}, nil
}

func (p *binaryField) Kind() Kind { return BinaryField }

func (p *binaryField) RequiredConfig() []string { return []string{"name", "type"} }

func (p *binaryField) OptionalConfig() map[string]any {
	return map[string]any{"length": 0, "byte_order": "big"}
}

func (p *binaryField) Match(data []byte, offset int) MatchResult {
	value, consumed, ok := readField(data, offset, p.spec, p.little)
	if !ok {
		return failure(BinaryField, offset, "insufficient data for field "+p.spec.Name)
	}
	return success(map[string]any{
		p.spec.Name: value,
	}, consumed, map[string]any{
		"pattern": string(BinaryField),
		"field":   p.spec.Name,
	})
}
