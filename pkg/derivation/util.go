package derivation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

func decodeJSONMap(content []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func parseIndex(seg string, length int) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}
