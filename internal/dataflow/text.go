package dataflow

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

var defaultTextKeys = []string{"text", "content"}

// TextContent returns the text carried by d. A JSON string is unquoted and
// a JSON object yields the first of keys present (text, then content, when
// keys is empty). Anything else textual is returned as is. Float data and
// invalid UTF-8 report false.
func TextContent(d Data, keys ...string) (string, bool) {
	s, ok := d.Text()
	if !ok {
		return "", false
	}
	if d.Kind == DataBytes && !utf8.ValidString(s) {
		return "", false
	}
	if len(keys) == 0 {
		keys = defaultTextKeys
	}

	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 {
		return s, true
	}
	switch trimmed[0] {
	case '"':
		var str string
		if json.Unmarshal(trimmed, &str) == nil {
			return str, true
		}
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(trimmed, &obj) != nil {
			break
		}
		for _, k := range keys {
			var str string
			if raw, ok := obj[k]; ok && string(raw) != "null" && json.Unmarshal(raw, &str) == nil {
				return str, true
			}
		}
	}
	return s, true
}
