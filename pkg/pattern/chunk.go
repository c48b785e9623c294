package pattern

import (
	"fmt"
	"hash/crc32"
)

// chunkStructure walks a repeating length/type/data[/checksum] layout
// (PNG chunks are the canonical example: uint32 BE length, 4-byte
// type, data, CRC-32 over type+data). Known chunk types can declare a
// field list that is decoded into the result tree under the chunk's
// type tag, which is what makes IHDR.width addressable by a grammar's
// extraction rules.
type chunkStructure struct {
	lengthWidth int
	little      bool
	typeLength  int
	checksum    string // "" or "crc32"
	terminator  string // chunk type that ends the walk, e.g. "IEND"
	chunkFields map[string][]fieldSpec
	maxChunks   int
}

func newChunkStructure(cfg map[string]any) (*chunkStructure, error) {
	lengthBits, ok := configInt(cfg, "length_width", 32)
	if !ok {
		return nil, invalidValue(ChunkStructure, "length_width", "8, 16, 32 or 64", cfg["length_width"])
	}
	switch lengthBits {
	case 8, 16, 32, 64:
	default:
		return nil, invalidValue(ChunkStructure, "length_width", "8, 16, 32 or 64", lengthBits)
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(ChunkStructure, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	typeLength, ok := configInt(cfg, "type_length", 4)
	if !ok || typeLength <= 0 {
		return nil, invalidValue(ChunkStructure, "type_length", "positive integer", cfg["type_length"])
	}

	checksum, ok := configString(cfg, "checksum", "")
	if !ok || (checksum != "" && checksum != "crc32") {
		return nil, invalidValue(ChunkStructure, "checksum", `"" or "crc32"`, cfg["checksum"])
	}

	terminator, ok := configString(cfg, "terminator", "")
	if !ok {
		return nil, invalidValue(ChunkStructure, "terminator", "chunk type string", cfg["terminator"])
	}

	maxChunks, ok := configInt(cfg, "max_chunks", 0)
	if !ok || maxChunks < 0 {
		return nil, invalidValue(ChunkStructure, "max_chunks", "non-negative integer", cfg["max_chunks"])
	}

	chunkFields := make(map[string][]fieldSpec)
	if raw, ok := cfg["chunk_fields"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidValue(ChunkStructure, "chunk_fields", "mapping of chunk type to field list", raw)
		}
		for chunkType := range m {
			specs, ok := configFieldSpecs(m, chunkType)
			if !ok {
				return nil, invalidValue(ChunkStructure, "chunk_fields."+chunkType, "field spec list", m[chunkType])
			}
			chunkFields[chunkType] = specs
		}
	}

	return &chunkStructure{
		lengthWidth: lengthBits / 8,
		little:      order == "little",
		typeLength:  typeLength,
		checksum:    checksum,
		terminator:  terminator,
		chunkFields: chunkFields,
		maxChunks:   maxChunks,
	}, nil
}

func (p *chunkStructure) Kind() Kind { return ChunkStructure }

func (p *chunkStructure) RequiredConfig() []string { return nil }

func (p *chunkStructure) OptionalConfig() map[string]any {
	return map[string]any{
		"length_width": 32, "byte_order": "big", "type_length": 4,
		"checksum": "", "terminator": "", "chunk_fields": nil, "max_chunks": 0,
	}
}

func (p *chunkStructure) Match(data []byte, offset int) MatchResult {
	checksumLen := 0
	if p.checksum == "crc32" {
		checksumLen = 4
	}
	headerLen := p.lengthWidth + p.typeLength

	var chunks []any
	parsed := make(map[string]any)
	pos := offset

	for pos < len(data) {
		if pos+headerLen > len(data) {
			if len(chunks) == 0 {
				return failure(ChunkStructure, pos, "insufficient data for chunk header")
			}
			break
		}
		if p.maxChunks > 0 && len(chunks) >= p.maxChunks {
			break
		}

		length := readUint(data, pos, p.lengthWidth, p.little)
		typeTag := string(data[pos+p.lengthWidth : pos+headerLen])

		dataStart := pos + headerLen
		dataEnd := dataStart + int(length)
		chunkEnd := dataEnd + checksumLen
		if chunkEnd > len(data) || dataEnd < dataStart {
			return failure(ChunkStructure, pos, fmt.Sprintf(
				"chunk %q declares %d data bytes but only %d remain", typeTag, length, len(data)-dataStart))
		}

		chunk := map[string]any{
			"type":        typeTag,
			"length":      int(length),
			"offset":      pos,
			"data_offset": dataStart,
		}

		if checksumLen > 0 {
			expected := uint32(readUint(data, dataEnd, 4, p.little))
			actual := crc32.ChecksumIEEE(data[pos+p.lengthWidth : dataEnd])
			chunk["crc_valid"] = expected == actual
			if expected != actual {
				chunk["crc_expected"] = expected
				chunk["crc_actual"] = actual
			}
		}

		if specs, ok := p.chunkFields[typeTag]; ok {
			fields := make(map[string]any, len(specs))
			fieldPos := dataStart
			for _, spec := range specs {
				value, consumed, ok := readField(data, fieldPos, spec, p.little)
				if !ok {
					break
				}
				fields[spec.Name] = value
				fieldPos += consumed
			}
			chunk["fields"] = fields
			parsed[typeTag] = fields
		}

		chunks = append(chunks, chunk)
		pos = chunkEnd

		if p.terminator != "" && typeTag == p.terminator {
			break
		}
	}

	if len(chunks) == 0 {
		return failure(ChunkStructure, offset, "insufficient data for chunk header")
	}

	result := map[string]any{
		"chunks":      chunks,
		"chunk_count": len(chunks),
	}
	for typeTag, fields := range parsed {
		result[typeTag] = fields
	}

	return success(result, pos-offset, map[string]any{
		"pattern": string(ChunkStructure),
	})
}
