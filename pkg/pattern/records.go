package pattern

import (
	"bytes"
	"fmt"
)

// sequentialRecords consumes a run of fixed-length or delimited
// records.
type sequentialRecords struct {
	recordLength int
	delimiter    []byte
	count        int // 0: until end of input
	fields       []fieldSpec
	little       bool
}

func newSequentialRecords(cfg map[string]any) (*sequentialRecords, error) {
	recordLength, ok := configInt(cfg, "record_length", 0)
	if !ok || recordLength < 0 {
		return nil, invalidValue(SequentialRecords, "record_length", "non-negative integer", cfg["record_length"])
	}

	delimiter, _, ok := configBytes(cfg, "delimiter")
	if !ok {
		return nil, invalidValue(SequentialRecords, "delimiter", "bytes", cfg["delimiter"])
	}

	if recordLength == 0 && len(delimiter) == 0 {
		return nil, missingKey(SequentialRecords, "record_length", "delimiter")
	}
	if recordLength > 0 && len(delimiter) > 0 {
		return nil, invalidValue(SequentialRecords, "record_length",
			"either record_length or delimiter, not both", recordLength)
	}

	count, ok := configInt(cfg, "count", 0)
	if !ok || count < 0 {
		return nil, invalidValue(SequentialRecords, "count", "non-negative integer", cfg["count"])
	}

	fields, ok := configFieldSpecs(cfg, "fields")
	if !ok {
		return nil, invalidValue(SequentialRecords, "fields", "field spec list", cfg["fields"])
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(SequentialRecords, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	return &sequentialRecords{
		recordLength: recordLength,
		delimiter:    delimiter,
		count:        count,
		fields:       fields,
		little:       order == "little",
	}, nil
}

func (p *sequentialRecords) Kind() Kind { return SequentialRecords }

func (p *sequentialRecords) RequiredConfig() []string { return nil }

func (p *sequentialRecords) OptionalConfig() map[string]any {
	return map[string]any{
		"record_length": 0, "delimiter": nil, "count": 0,
		"fields": nil, "byte_order": "big",
	}
}

func (p *sequentialRecords) Match(data []byte, offset int) MatchResult {
	var records []any
	pos := offset

	for pos < len(data) {
		if p.count > 0 && len(records) >= p.count {
			break
		}

		var recordEnd, next int
		if p.recordLength > 0 {
			recordEnd = pos + p.recordLength
			if recordEnd > len(data) {
				break
			}
			next = recordEnd
		} else {
			idx := bytes.Index(data[pos:], p.delimiter)
			if idx < 0 {
				recordEnd = len(data)
				next = len(data)
			} else {
				recordEnd = pos + idx
				next = recordEnd + len(p.delimiter)
			}
		}

		record := map[string]any{
			"offset": pos,
			"length": recordEnd - pos,
		}
		if len(p.fields) > 0 {
			fields := make(map[string]any, len(p.fields))
			fieldPos := pos
			for _, spec := range p.fields {
				value, consumed, ok := readField(data[:recordEnd], fieldPos, spec, p.little)
				if !ok {
					break
				}
				fields[spec.Name] = value
				fieldPos += consumed
			}
			record["fields"] = fields
		}
		records = append(records, record)
		pos = next
	}

	if p.count > 0 && len(records) < p.count {
		return failure(SequentialRecords, pos, fmt.Sprintf(
			"expected %d records, found %d", p.count, len(records)))
	}
	if len(records) == 0 {
		return failure(SequentialRecords, offset, "no records found")
	}

	return success(map[string]any{
		"records":      records,
		"record_count": len(records),
	}, pos-offset, map[string]any{
		"pattern": string(SequentialRecords),
	})
}

// headerBody splits input into a fixed-size decoded header and an
// opaque body.
type headerBody struct {
	headerLength int
	fields       []fieldSpec
	little       bool
	bodyLength   int // 0: rest of input
}

func newHeaderBody(cfg map[string]any) (*headerBody, error) {
	headerLength, ok := configInt(cfg, "header_length", 0)
	if headerLength == 0 {
		return nil, missingKey(HeaderBody, "header_length")
	}
	if !ok || headerLength < 0 {
		return nil, invalidValue(HeaderBody, "header_length", "positive integer", cfg["header_length"])
	}

	fields, ok := configFieldSpecs(cfg, "fields")
	if !ok {
		return nil, invalidValue(HeaderBody, "fields", "field spec list", cfg["fields"])
	}

	order, ok := configString(cfg, "byte_order", "big")
	if !ok || (order != "big" && order != "little") {
		return nil, invalidValue(HeaderBody, "byte_order", `"big" or "little"`, cfg["byte_order"])
	}

	bodyLength, ok := configInt(cfg, "body_length", 0)
	if !ok || bodyLength < 0 {
		return nil, invalidValue(HeaderBody, "body_length", "non-negative integer", cfg["body_length"])
	}

	return &headerBody{
		headerLength: headerLength,
		fields:       fields,
		little:       order == "little",
		bodyLength:   bodyLength,
	}, nil
}

func (p *headerBody) Kind() Kind { return HeaderBody }

func (p *headerBody) RequiredConfig() []string { return []string{"header_length"} }

func (p *headerBody) OptionalConfig() map[string]any {
	return map[string]any{"fields": nil, "byte_order": "big", "body_length": 0}
}

func (p *headerBody) Match(data []byte, offset int) MatchResult {
	if offset+p.headerLength > len(data) {
		return failure(HeaderBody, offset, "insufficient data for header")
	}

	header := make(map[string]any, len(p.fields))
	fieldPos := offset
	for _, spec := range p.fields {
		value, consumed, ok := readField(data[:offset+p.headerLength], fieldPos, spec, p.little)
		if !ok {
			return failure(HeaderBody, fieldPos, "header field "+spec.Name+" exceeds header length")
		}
		header[spec.Name] = value
		fieldPos += consumed
	}

	bodyStart := offset + p.headerLength
	bodyEnd := len(data)
	if p.bodyLength > 0 {
		bodyEnd = bodyStart + p.bodyLength
		if bodyEnd > len(data) {
			return failure(HeaderBody, bodyStart, "insufficient data for body")
		}
	}

	return success(map[string]any{
		"header":      header,
		"body_offset": bodyStart,
		"body_length": bodyEnd - bodyStart,
	}, bodyEnd-offset, map[string]any{
		"pattern": string(HeaderBody),
	})
}

// keyValue parses line-oriented key/value text (INI bodies, Java
// properties, email headers).
type keyValue struct {
	separator       string
	commentPrefixes []string
	trim            bool
}

func newKeyValue(cfg map[string]any) (*keyValue, error) {
	separator, ok := configString(cfg, "separator", "=")
	if !ok || separator == "" {
		return nil, invalidValue(KeyValue, "separator", "non-empty string", cfg["separator"])
	}

	comments, ok := configStringSlice(cfg, "comment_prefixes")
	if !ok {
		return nil, invalidValue(KeyValue, "comment_prefixes", "list of strings", cfg["comment_prefixes"])
	}
	if comments == nil {
		comments = []string{"#", ";"}
	}

	trim, ok := configBool(cfg, "trim", true)
	if !ok {
		return nil, invalidValue(KeyValue, "trim", "bool", cfg["trim"])
	}

	return &keyValue{separator: separator, commentPrefixes: comments, trim: trim}, nil
}

func (p *keyValue) Kind() Kind { return KeyValue }

func (p *keyValue) RequiredConfig() []string { return nil }

func (p *keyValue) OptionalConfig() map[string]any {
	return map[string]any{"separator": "=", "comment_prefixes": []string{"#", ";"}, "trim": true}
}

func (p *keyValue) Match(data []byte, offset int) MatchResult {
	if offset >= len(data) {
		return failure(KeyValue, offset, "no input")
	}

	pairs := make(map[string]any)
	lines := bytes.Split(data[offset:], []byte("\n"))
	for _, line := range lines {
		text := string(bytes.TrimRight(line, "\r"))
		trimmed := trimSpace(text)
		if trimmed == "" || hasAnyPrefix(trimmed, p.commentPrefixes) {
			continue
		}
		idx := bytes.Index([]byte(text), []byte(p.separator))
		if idx < 0 {
			continue
		}
		key := text[:idx]
		value := text[idx+len(p.separator):]
		if p.trim {
			key = trimSpace(key)
			value = trimSpace(value)
		}
		if key != "" {
			pairs[key] = value
		}
	}

	return success(map[string]any{
		"pairs":      pairs,
		"pair_count": len(pairs),
	}, len(data)-offset, map[string]any{
		"pattern": string(KeyValue),
	})
}

// hierarchicalTree parses sectioned key/value text: "[section]"
// headers grouping key/value pairs into a two-level tree (INI files
// and their relatives).
type hierarchicalTree struct {
	sectionStart string
	sectionEnd   string
	separator    string
}

func newHierarchicalTree(cfg map[string]any) (*hierarchicalTree, error) {
	start, ok := configString(cfg, "section_start", "[")
	if !ok || start == "" {
		return nil, invalidValue(HierarchicalTree, "section_start", "non-empty string", cfg["section_start"])
	}
	end, ok := configString(cfg, "section_end", "]")
	if !ok || end == "" {
		return nil, invalidValue(HierarchicalTree, "section_end", "non-empty string", cfg["section_end"])
	}
	separator, ok := configString(cfg, "separator", "=")
	if !ok || separator == "" {
		return nil, invalidValue(HierarchicalTree, "separator", "non-empty string", cfg["separator"])
	}
	return &hierarchicalTree{sectionStart: start, sectionEnd: end, separator: separator}, nil
}

func (p *hierarchicalTree) Kind() Kind { return HierarchicalTree }

func (p *hierarchicalTree) RequiredConfig() []string { return nil }

func (p *hierarchicalTree) OptionalConfig() map[string]any {
	return map[string]any{"section_start": "[", "section_end": "]", "separator": "="}
}

func (p *hierarchicalTree) Match(data []byte, offset int) MatchResult {
	if offset >= len(data) {
		return failure(HierarchicalTree, offset, "no input")
	}

	sections := make(map[string]any)
	current := make(map[string]any)
	currentName := ""
	sections[currentName] = current

	lines := bytes.Split(data[offset:], []byte("\n"))
	for _, line := range lines {
		text := trimSpace(string(bytes.TrimRight(line, "\r")))
		if text == "" || hasAnyPrefix(text, []string{"#", ";"}) {
			continue
		}
		if len(text) > len(p.sectionStart)+len(p.sectionEnd) &&
			text[:len(p.sectionStart)] == p.sectionStart &&
			text[len(text)-len(p.sectionEnd):] == p.sectionEnd {
			currentName = text[len(p.sectionStart) : len(text)-len(p.sectionEnd)]
			current = make(map[string]any)
			sections[currentName] = current
			continue
		}
		idx := bytes.Index([]byte(text), []byte(p.separator))
		if idx < 0 {
			continue
		}
		current[trimSpace(text[:idx])] = trimSpace(text[idx+len(p.separator):])
	}

	if len(sections[""].(map[string]any)) == 0 {
		delete(sections, "")
	}

	return success(map[string]any{
		"sections":      sections,
		"section_count": len(sections),
	}, len(data)-offset, map[string]any{
		"pattern": string(HierarchicalTree),
	})
}

func trimSpace(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}
