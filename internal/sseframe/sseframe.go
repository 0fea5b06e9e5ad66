// Package sseframe builds raw Server-Sent-Events text frames. Both the SSE
// subscribe handler (backlog/resume events) and the publish fan-out
// (per-publish broadcast events) build frames with the same two shapes
// (UTF-8 payloads as multi-line "data:" fields, non-UTF-8 payloads
// base64-encoded under a "-base64" event name), so the shape lives here
// once.
package sseframe

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// Message renders payload as an SSE frame named event, or "event-base64"
// when payload isn't valid UTF-8. id, when non-empty, is emitted as an
// "id:" field before the event's data lines.
func Message(event, id string, payload []byte) string {
	var b strings.Builder
	if utf8.Valid(payload) {
		b.WriteString("event: " + event + "\n")
		if id != "" {
			b.WriteString("id: " + id + "\n")
		}
		for _, line := range strings.Split(string(payload), "\n") {
			b.WriteString("data: " + line + "\n")
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("event: " + event + "-base64\n")
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	b.WriteString("data: " + base64.StdEncoding.EncodeToString(payload) + "\n\n")
	return b.String()
}

// Named renders a zero-payload control frame such as "stream-open".
func Named(event string) string {
	return "event: " + event + "\ndata: \n\n"
}

// Error renders an inline "stream-error" event carrying a JSON body of
// {condition, text}.
func Error(condition, text string) string {
	return "event: stream-error\ndata: {\"condition\":\"" + condition + "\",\"text\":\"" + jsonEscape(text) + "\"}\n\n"
}

func jsonEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
