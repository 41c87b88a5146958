package runner

import (
	"strings"
	"unicode/utf8"
)

// SplitText breaks text into chunks of at most maxLen bytes, preferring
// line boundaries. A maxLen <= 0 disables splitting.
func SplitText(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for line := range strings.SplitSeq(text, "\n") {
		withNewline := line + "\n"
		if current.Len()+len(withNewline) > maxLen {
			flush()
			if len(withNewline) > maxLen {
				chunks = append(chunks, forceSplit(line, maxLen)...)
				continue
			}
		}
		current.WriteString(withNewline)
	}
	flush()
	return chunks
}

// forceSplit cuts a single long line into pieces of at most maxLen bytes
// without splitting a UTF-8 sequence.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	for len(line) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		parts = append(parts, line[:cut])
		line = line[cut:]
	}
	if line != "" {
		parts = append(parts, line)
	}
	return parts
}
