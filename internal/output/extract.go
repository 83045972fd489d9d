// Package output turns the heterogeneous result payload of a generation job
// into plain text.
package output

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ExtractText normalises a job output payload to text.
//
//   - a JSON string is returned as is
//   - an array is concatenated with no separator; string elements contribute
//     their value, null contributes nothing, anything else its raw JSON
//   - an object yields its "text" field, else its "content" field, else an
//     indented dump of the whole object
//   - anything else, including null and invalid JSON, yields ""
func ExtractText(raw json.RawMessage) string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return ""
	}

	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.String:
		return r.Str
	case r.IsArray():
		var sb strings.Builder
		r.ForEach(func(_, v gjson.Result) bool {
			sb.WriteString(elementText(v))
			return true
		})
		return sb.String()
	case r.IsObject():
		for _, key := range []string{"text", "content"} {
			if v := r.Get(key); truthy(v) {
				return elementText(v)
			}
		}
		return strings.TrimRight(string(pretty.Pretty([]byte(r.Raw))), "\n")
	default:
		return ""
	}
}

func elementText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	default:
		return v.Raw
	}
}

// truthy follows the loose notion of a present, non-empty field
func truthy(v gjson.Result) bool {
	if !v.Exists() {
		return false
	}
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	default:
		return true
	}
}
