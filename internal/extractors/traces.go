package extractors

import (
	"regexp"
	"strings"
)

var stackFramePattern = regexp.MustCompile(`(\w+\.\w+:\d+)`)

// stackFrameSeparator joins frames in the order they appear in the message.
const stackFrameSeparator = " → "

// ExtractStackTrace returns the file:line frames found in message joined by an
// arrow, or false when the message carries no frames.
func ExtractStackTrace(message string) (string, bool) {
	frames := stackFramePattern.FindAllString(message, -1)
	if len(frames) == 0 {
		return "", false
	}
	return strings.Join(frames, stackFrameSeparator), true
}
