package generate

import (
	"regexp"
	"strings"
)

// ExtractionError is returned when a reply contains no usable code. Another
// attempt may produce code, so it is reported as transient.
type ExtractionError struct {
	Reply string
}

func (e *ExtractionError) Error() string {
	r := e.Reply
	if len(r) > 80 {
		r = r[:80] + "..."
	}
	return "no code block in model reply: " + strings.TrimSpace(r)
}

// Transient reports true: a fresh completion may succeed.
func (e *ExtractionError) Transient() bool { return true }

var fence = regexp.MustCompile("(?s)```([a-zA-Z]*)[ \t]*\r?\n(.*?)```")

var preferredLangs = map[string]bool{"tsx": true, "jsx": true, "typescript": true, "ts": true, "javascript": true, "js": true, "": true}

// ExtractCode returns the first TSX-like fenced block of reply. A reply with
// no fences that already looks like a module is returned whole.
func ExtractCode(reply string) (string, error) {
	var fallback string
	for _, m := range fence.FindAllStringSubmatch(reply, -1) {
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}
		if preferredLangs[strings.ToLower(m[1])] {
			return body + "\n", nil
		}
		if fallback == "" {
			fallback = body
		}
	}
	if fallback != "" {
		return fallback + "\n", nil
	}

	trimmed := strings.TrimSpace(reply)
	if strings.Contains(trimmed, "export ") && (strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "export ")) {
		return trimmed + "\n", nil
	}
	return "", &ExtractionError{Reply: reply}
}
