package pattern

import "fmt"

// offsetTable reads a directory of (offset, size) pairs. The
// referenced regions are exposed as entries; callers slice into the
// original input lazily rather than copying region bytes.
type offsetTable struct {
	entryCount  int // 0: read a count prefix instead
	countWidth  int
	offsetWidth int
	sizeWidth   int
	little      bool
	tableOffset int
}

func newOffsetTable(cfg map[string]any) (*offsetTable, error) {
	entryCount, ok := configInt(cfg, "entry_count", 0)
	if !ok || entryCount < 0 {
		return nil, invalidValue(OffsetTable, "entry_count", "non-negative integer", cfg["entry_count"])
	}

	countBits, ok := configInt(cfg, "count_width", 16)
	if !ok {
		return nil, invalidValue(OffsetTable, "count_width", "8, 16, 32 or 64", cfg["count_width"])
	}
	offsetBits, ok := configInt(cfg, "offset_width", 32)
	if !ok {
		return nil, invalidValue(OffsetTable, "offset_width", "8, 16, 32 or 64", cfg["offset_width"])
	}
	sizeBits, ok := configInt(cfg, "size_width", 32)
	if !ok {
		return nil, invalidValue(OffsetTable, "size_width", "8, 16, 32 or 64", cfg["size_width"])
	}
	for key, bits := range map[string]int{"count_width": countBits, "offset_width": offsetBits, "size_width": sizeBits} {
		switch bits {
		case 8, 16, 32, 64:
		default:
			return nil, invalidValue(OffsetTable, key, "8, 16, 32 or 64", bits)
		}
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(OffsetTable, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	tableOffset, ok := configInt(cfg, "table_offset", 0)
	if !ok || tableOffset < 0 {
		return nil, invalidValue(OffsetTable, "table_offset", "non-negative integer", cfg["table_offset"])
	}

	return &offsetTable{
		entryCount:  entryCount,
		countWidth:  countBits / 8,
		offsetWidth: offsetBits / 8,
		sizeWidth:   sizeBits / 8,
		little:      order == "little",
		tableOffset: tableOffset,
	}, nil
}

func (p *offsetTable) Kind() Kind { return OffsetTable }

func (p *offsetTable) RequiredConfig() []string { return nil }

func (p *offsetTable) OptionalConfig() map[string]any {
	return map[string]any{
		"entry_count": 0, "count_width": 16, "offset_width": 32,
		"size_width": 32, "byte_order": "big", "table_offset": 0,
	}
}

func (p *offsetTable) Match(data []byte, offset int) MatchResult {
	pos := offset + p.tableOffset

	count := p.entryCount
	if count == 0 {
		if pos+p.countWidth > len(data) {
			return failure(OffsetTable, pos, "insufficient data for entry count")
		}
		count = int(readUint(data, pos, p.countWidth, p.little))
		pos += p.countWidth
	}

	entrySize := p.offsetWidth + p.sizeWidth
	if pos+count*entrySize > len(data) {
		return failure(OffsetTable, pos, fmt.Sprintf(
			"table declares %d entries but only %d bytes remain", count, len(data)-pos))
	}

	entries := make([]any, 0, count)
	for i := 0; i < count; i++ {
		entryOffset := readUint(data, pos, p.offsetWidth, p.little)
		entrySizeVal := readUint(data, pos+p.offsetWidth, p.sizeWidth, p.little)
		entries = append(entries, map[string]any{
			"offset": int(entryOffset),
			"size":   int(entrySizeVal),
			"valid":  int(entryOffset)+int(entrySizeVal) <= len(data),
		})
		pos += entrySize
	}

	return success(map[string]any{
		"entries":     entries,
		"entry_count": count,
	}, pos-offset, map[string]any{
		"pattern": string(OffsetTable),
	})
}
