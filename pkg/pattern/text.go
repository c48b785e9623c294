package pattern

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// textMarkup recognizes text formats by their opening markers ("<?xml",
// "%PDF-", "{\rtf") and verifies the input decodes as UTF-8 text.
type textMarkup struct {
	markers  []string
	required bool
}

func newTextMarkup(cfg map[string]any) (*textMarkup, error) {
	markers, ok := configStringSlice(cfg, "markers")
	if !ok {
		return nil, invalidValue(TextMarkup, "markers", "list of strings", cfg["markers"])
	}
	if len(markers) == 0 {
		return nil, missingKey(TextMarkup, "markers")
	}
	required, ok := configBool(cfg, "required", true)
	if !ok {
		return nil, invalidValue(TextMarkup, "required", "bool", cfg["required"])
	}
	return &textMarkup{markers: markers, required: required}, nil
}

func (p *textMarkup) Kind() Kind { return TextMarkup }

func (p *textMarkup) RequiredConfig() []string { return []string{"markers"} }

func (p *textMarkup) OptionalConfig() map[string]any {
	return map[string]any{"required": true}
}

func (p *textMarkup) Match(data []byte, offset int) MatchResult {
	rest := data[offset:]
	var found string
	for _, m := range p.markers {
		if bytes.HasPrefix(rest, []byte(m)) {
			found = m
			break
		}
	}

	if found == "" {
		if p.required {
			return failure(TextMarkup, offset, "no markup marker found")
		}
		return softMiss("no_marker")
	}
	if !utf8.Valid(rest) {
		if p.required {
			return failure(TextMarkup, offset, "content is not valid UTF-8")
		}
		return softMiss("invalid_utf8")
	}

	return success(map[string]any{
		"marker":      found,
		"text_length": len(rest),
		"line_count":  bytes.Count(rest, []byte("\n")) + 1,
	}, len(rest), map[string]any{
		"pattern": string(TextMarkup),
	})
}

// eofMarker looks for a trailing marker ("%%EOF", the IEND chunk) near
// the end of input. Commonly declared optional so trailing garbage is
// representable without failing extraction.
type eofMarker struct {
	marker   []byte
	window   int
	required bool
}

func newEOFMarker(cfg map[string]any) (*eofMarker, error) {
	marker, present, ok := configBytes(cfg, "marker")
	if !present {
		return nil, missingKey(EOFMarker, "marker")
	}
	if !ok || len(marker) == 0 {
		return nil, invalidValue(EOFMarker, "marker", "hex string or bytes", cfg["marker"])
	}

	window, ok := configInt(cfg, "window", 64)
	if !ok || window <= 0 {
		return nil, invalidValue(EOFMarker, "window", "positive integer", cfg["window"])
	}
	required, ok := configBool(cfg, "required", false)
	if !ok {
		return nil, invalidValue(EOFMarker, "required", "bool", cfg["required"])
	}

	return &eofMarker{marker: marker, window: window, required: required}, nil
}

func (p *eofMarker) Kind() Kind { return EOFMarker }

func (p *eofMarker) RequiredConfig() []string { return []string{"marker"} }

func (p *eofMarker) OptionalConfig() map[string]any {
	return map[string]any{"window": 64, "required": false}
}

func (p *eofMarker) Match(data []byte, offset int) MatchResult {
	start := len(data) - p.window
	if start < offset {
		start = offset
	}

	idx := bytes.LastIndex(data[start:], p.marker)
	if idx < 0 {
		if p.required {
			return failure(EOFMarker, offset, fmt.Sprintf("marker %q not found in trailing window", p.marker))
		}
		return softMiss("marker_not_found")
	}

	markerOffset := start + idx
	return success(map[string]any{
		"found":  true,
		"offset": markerOffset,
	}, len(data)-offset, map[string]any{
		"pattern": string(EOFMarker),
	})
}

// xrefTable parses a PDF-style cross-reference table: the "xref"
// keyword, subsection headers of the form "start count", and fixed
// 20-byte entries "nnnnnnnnnn ggggg n".
type xrefTable struct {
	keyword string
}

func newXrefTable(cfg map[string]any) (*xrefTable, error) {
	keyword, ok := configString(cfg, "keyword", "xref")
	if !ok || keyword == "" {
		return nil, invalidValue(XrefTable, "keyword", "non-empty string", cfg["keyword"])
	}
	return &xrefTable{keyword: keyword}, nil
}

func (p *xrefTable) Kind() Kind { return XrefTable }

func (p *xrefTable) RequiredConfig() []string { return nil }

func (p *xrefTable) OptionalConfig() map[string]any {
	return map[string]any{"keyword": "xref"}
}

func (p *xrefTable) Match(data []byte, offset int) MatchResult {
	rest := data[offset:]
	idx := bytes.Index(rest, []byte(p.keyword))
	if idx < 0 {
		return failure(XrefTable, offset, "xref keyword not found")
	}

	pos := idx + len(p.keyword)
	var sections []any
	totalEntries := 0

	for pos < len(rest) {
		lineEnd := bytes.IndexByte(rest[pos:], '\n')
		if lineEnd < 0 {
			break
		}
		line := strings.TrimSpace(string(bytes.TrimRight(rest[pos:pos+lineEnd], "\r")))
		if line == "" {
			pos += lineEnd + 1
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			break // trailer or next object
		}
		start, err1 := strconv.Atoi(parts[0])
		count, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || start < 0 || count < 0 {
			break
		}
		pos += lineEnd + 1

		// Fixed-width entries: exactly 20 bytes each including EOL.
		if pos+count*20 > len(rest) {
			return failure(XrefTable, offset+pos, fmt.Sprintf(
				"xref subsection declares %d entries but data is truncated", count))
		}
		entries := make([]any, 0, count)
		for i := 0; i < count; i++ {
			entry := string(rest[pos : pos+20])
			fields := strings.Fields(entry)
			if len(fields) >= 3 {
				off, _ := strconv.Atoi(fields[0])
				gen, _ := strconv.Atoi(fields[1])
				entries = append(entries, map[string]any{
					"object":     start + i,
					"offset":     off,
					"generation": gen,
					"in_use":     fields[2] == "n",
				})
			}
			pos += 20
		}
		sections = append(sections, map[string]any{
			"start":   start,
			"count":   count,
			"entries": entries,
		})
		totalEntries += count
	}

	if len(sections) == 0 {
		return failure(XrefTable, offset+idx, "no xref subsections found")
	}

	return success(map[string]any{
		"sections":    sections,
		"entry_count": totalEntries,
		"xref_offset": offset + idx,
	}, pos, map[string]any{
		"pattern": string(XrefTable),
	})
}
