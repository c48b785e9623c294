package pattern

import "fmt"

// boxStructure walks ISO-BMFF boxes (MP4 family): big-endian uint32
// size, 4-byte type, optional 64-bit largesize when size == 1, box
// extends to end of input when size == 0.
type boxStructure struct {
	maxBoxes int
}

func newBoxStructure(cfg map[string]any) (*boxStructure, error) {
	maxBoxes, ok := configInt(cfg, "max_boxes", 0)
	if !ok || maxBoxes < 0 {
		return nil, invalidValue(BoxStructure, "max_boxes", "non-negative integer", cfg["max_boxes"])
	}
	return &boxStructure{maxBoxes: maxBoxes}, nil
}

func (p *boxStructure) Kind() Kind { return BoxStructure }

func (p *boxStructure) RequiredConfig() []string { return nil }

func (p *boxStructure) OptionalConfig() map[string]any {
	return map[string]any{"max_boxes": 0}
}

func (p *boxStructure) Match(data []byte, offset int) MatchResult {
	boxes, consumed, err := walkBoxes(data, offset, len(data), p.maxBoxes)
	if err != nil {
		return *err
	}
	if len(boxes) == 0 {
		return failure(BoxStructure, offset, "insufficient data for box header")
	}

	byType := make(map[string]any)
	for _, b := range boxes {
		box := b.(map[string]any)
		byType[box["type"].(string)] = box
	}

	result := map[string]any{
		"boxes":     boxes,
		"box_count": len(boxes),
	}
	for typ, box := range byType {
		result[typ] = box
	}

	return success(result, consumed, map[string]any{
		"pattern": string(BoxStructure),
	})
}

// nestedBox is boxStructure with recursive descent into declared
// container types ("moov", "trak", "mdia", ...), producing a tree.
type nestedBox struct {
	containers map[string]bool
	maxDepth   int
}

func newNestedBox(cfg map[string]any) (*nestedBox, error) {
	names, ok := configStringSlice(cfg, "containers")
	if !ok {
		return nil, invalidValue(NestedBox, "containers", "list of container box types", cfg["containers"])
	}
	if len(names) == 0 {
		return nil, missingKey(NestedBox, "containers")
	}

	maxDepth, ok := configInt(cfg, "max_depth", 8)
	if !ok || maxDepth <= 0 {
		return nil, invalidValue(NestedBox, "max_depth", "positive integer", cfg["max_depth"])
	}

	containers := make(map[string]bool, len(names))
	for _, n := range names {
		if len(n) != 4 {
			return nil, invalidValue(NestedBox, "containers", "4-character box types", n)
		}
		containers[n] = true
	}
	return &nestedBox{containers: containers, maxDepth: maxDepth}, nil
}

func (p *nestedBox) Kind() Kind { return NestedBox }

func (p *nestedBox) RequiredConfig() []string { return []string{"containers"} }

func (p *nestedBox) OptionalConfig() map[string]any {
	return map[string]any{"max_depth": 8}
}

func (p *nestedBox) Match(data []byte, offset int) MatchResult {
	descend := func(box map[string]any, depth int) bool {
		return depth < p.maxDepth && p.containers[box["type"].(string)]
	}
	boxes, consumed, err := walkBoxesNested(data, offset, len(data), descend, 0)
	if err != nil {
		return *err
	}
	if len(boxes) == 0 {
		return failure(NestedBox, offset, "insufficient data for box header")
	}

	return success(map[string]any{
		"boxes":     boxes,
		"box_count": len(boxes),
	}, consumed, map[string]any{
		"pattern": string(NestedBox),
	})
}

func walkBoxes(data []byte, offset, limit, maxBoxes int) ([]any, int, *MatchResult) {
	var boxes []any
	pos := offset

	for pos+8 <= limit {
		if maxBoxes > 0 && len(boxes) >= maxBoxes {
			break
		}

		size := int(readUint(data, pos, 4, false))
		typ := string(data[pos+4 : pos+8])
		headerLen := 8

		switch size {
		case 0:
			size = limit - pos
		case 1:
			if pos+16 > limit {
				fail := failure(BoxStructure, pos, "insufficient data for largesize")
				return nil, 0, &fail
			}
			size = int(readUint(data, pos+8, 8, false))
			headerLen = 16
		}

		if size < headerLen || pos+size > limit {
			fail := failure(BoxStructure, pos, fmt.Sprintf(
				"box %q declares %d bytes but only %d remain", typ, size, limit-pos))
			return nil, 0, &fail
		}

		box := map[string]any{
			"type":        typ,
			"size":        size,
			"offset":      pos,
			"data_offset": pos + headerLen,
		}
		boxes = append(boxes, box)
		pos += size
	}

	return boxes, pos - offset, nil
}

func walkBoxesNested(data []byte, offset, limit int, descend func(map[string]any, int) bool, depth int) ([]any, int, *MatchResult) {
	boxes, consumed, errResult := walkBoxes(data, offset, limit, 0)
	if errResult != nil {
		return nil, 0, errResult
	}

	for _, b := range boxes {
		box := b.(map[string]any)
		if !descend(box, depth) {
			continue
		}
		start := box["data_offset"].(int)
		end := box["offset"].(int) + box["size"].(int)
		children, _, errResult := walkBoxesNested(data, start, end, descend, depth+1)
		if errResult != nil {
			return nil, 0, errResult
		}
		box["children"] = children
	}

	return boxes, consumed, nil
}
