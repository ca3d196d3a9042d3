// Package errfmt reduces raw upstream error strings to a readable one-line
// message for logs. Parsing is best-effort and never fails: any input that
// does not match the expected shape is returned unchanged. The result is
// cosmetic only and must never feed retry decisions.
package errfmt

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// statusLine matches the "<code> <STATUS_TOKEN>. <payload>" shape emitted by
// generative API SDKs, e.g. "429 RESOURCE_EXHAUSTED. {'error': {...}}".
// The payload may span multiple lines.
var statusLine = regexp.MustCompile(`(?s)^(\d+)\s+([A-Z_]+)\.\s+(.*)$`)

// Normalize extracts the error.message field from the payload of a
// status-line error string and rebuilds "<code> <STATUS>. <message>".
// Inputs that do not match, or whose payload cannot be parsed, come back
// verbatim.
func Normalize(s string) string {
	m := statusLine.FindStringSubmatch(s)
	if m == nil {
		return s
	}

	payload := m[3]
	if !gjson.Valid(payload) {
		// Payloads are frequently repr-style single-quoted dicts; relax
		// them into JSON before querying.
		relaxed := strings.ReplaceAll(payload, "'", `"`)
		if !gjson.Valid(relaxed) {
			return s
		}
		payload = relaxed
	}

	if !gjson.Get(payload, "error").Exists() {
		return s
	}
	message := gjson.Get(payload, "error.message")
	if !message.Exists() {
		return m[1] + " " + m[2] + ". Unknown error"
	}
	return m[1] + " " + m[2] + ". " + message.String()
}
