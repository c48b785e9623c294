package pattern

import "fmt"

// riffHeader matches the 12-byte RIFF container header: "RIFF",
// little-endian total size, and a 4-byte form type such as "WAVE".
type riffHeader struct {
	form     string // optional form filter
	required bool
}

func newRIFFHeader(cfg map[string]any) (*riffHeader, error) {
	form, ok := configString(cfg, "form", "")
	if !ok || (form != "" && len(form) != 4) {
		return nil, invalidValue(RIFFHeader, "form", "4-character form type", cfg["form"])
	}
	required, ok := configBool(cfg, "required", true)
	if !ok {
		return nil, invalidValue(RIFFHeader, "required", "bool", cfg["required"])
	}
	return &riffHeader{form: form, required: required}, nil
}

func (p *riffHeader) Kind() Kind { return RIFFHeader }

func (p *riffHeader) RequiredConfig() []string { return nil }

func (p *riffHeader) OptionalConfig() map[string]any {
	return map[string]any{"form": "", "required": true}
}

func (p *riffHeader) Match(data []byte, offset int) MatchResult {
	if offset+12 > len(data) {
		if p.required {
			return failure(RIFFHeader, offset, "insufficient data for RIFF header")
		}
		return softMiss("insufficient_data")
	}

	if string(data[offset:offset+4]) != "RIFF" {
		if p.required {
			return failure(RIFFHeader, offset, "missing RIFF tag")
		}
		return softMiss("not_riff")
	}

	size := readUint(data, offset+4, 4, true)
	form := string(data[offset+8 : offset+12])
	if p.form != "" && form != p.form {
		if p.required {
			return failure(RIFFHeader, offset+8, fmt.Sprintf("form mismatch: expected %q, got %q", p.form, form))
		}
		return softMiss("form_mismatch")
	}

	return success(map[string]any{
		"form": form,
		"size": int(size),
	}, 12, map[string]any{
		"pattern": string(RIFFHeader),
	})
}

// riffChunk walks RIFF subchunks: 4-byte id, little-endian uint32
// size, data, and a pad byte when the size is odd. Field lists can be
// declared per chunk id ("fmt " carrying sample rate and channel
// count is the classic case).
type riffChunk struct {
	chunkFields map[string][]fieldSpec
	maxChunks   int
}

func newRIFFChunk(cfg map[string]any) (*riffChunk, error) {
	maxChunks, ok := configInt(cfg, "max_chunks", 0)
	if !ok || maxChunks < 0 {
		return nil, invalidValue(RIFFChunk, "max_chunks", "non-negative integer", cfg["max_chunks"])
	}

	chunkFields := make(map[string][]fieldSpec)
	if raw, ok := cfg["chunk_fields"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidValue(RIFFChunk, "chunk_fields", "mapping of chunk id to field list", raw)
		}
		for id := range m {
			specs, ok := configFieldSpecs(m, id)
			if !ok {
				return nil, invalidValue(RIFFChunk, "chunk_fields."+id, "field spec list", m[id])
			}
			chunkFields[id] = specs
		}
	}

	return &riffChunk{chunkFields: chunkFields, maxChunks: maxChunks}, nil
}

func (p *riffChunk) Kind() Kind { return RIFFChunk }

func (p *riffChunk) RequiredConfig() []string { return nil }

func (p *riffChunk) OptionalConfig() map[string]any {
	return map[string]any{"chunk_fields": nil, "max_chunks": 0}
}

func (p *riffChunk) Match(data []byte, offset int) MatchResult {
	var chunks []any
	parsed := make(map[string]any)
	pos := offset

	for pos+8 <= len(data) {
		if p.maxChunks > 0 && len(chunks) >= p.maxChunks {
			break
		}

		id := string(data[pos : pos+4])
		size := int(readUint(data, pos+4, 4, true))
		dataStart := pos + 8
		dataEnd := dataStart + size
		if dataEnd > len(data) || dataEnd < dataStart {
			return failure(RIFFChunk, pos, fmt.Sprintf(
				"chunk %q declares %d bytes but only %d remain", id, size, len(data)-dataStart))
		}

		chunk := map[string]any{
			"id":          id,
			"size":        size,
			"offset":      pos,
			"data_offset": dataStart,
		}

		if specs, ok := p.chunkFields[id]; ok {
			fields := make(map[string]any, len(specs))
			fieldPos := dataStart
			for _, spec := range specs {
				value, consumed, ok := readField(data, fieldPos, spec, true)
				if !ok {
					break
				}
				fields[spec.Name] = value
				fieldPos += consumed
			}
			chunk["fields"] = fields
			parsed[id] = fields
		}

		chunks = append(chunks, chunk)
		pos = dataEnd
		if size%2 == 1 && pos < len(data) {
			pos++ // pad byte
		}
	}

	if len(chunks) == 0 {
		return failure(RIFFChunk, offset, "insufficient data for RIFF chunk")
	}

	result := map[string]any{
		"chunks":      chunks,
		"chunk_count": len(chunks),
	}
	for id, fields := range parsed {
		result[id] = fields
	}

	return success(result, pos-offset, map[string]any{
		"pattern": string(RIFFChunk),
	})
}
