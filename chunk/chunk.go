// Package chunk splits long generated text into platform-sized message
// segments. Splitting prefers paragraph breaks, then line breaks, then
// spaces; a candidate boundary is only accepted in the second half of the
// window so chunks don't degenerate into short fragments.
package chunk

import "strings"

// Split divides text into ordered chunks of at most maxLength runes each.
// It is a pure function of its input: if the text already fits, the result is
// a single chunk containing it unchanged. Trailing whitespace is trimmed off
// each cut and leading whitespace off the remainder, so rejoining chunks
// reproduces the input modulo whitespace at the cut points.
func Split(text string, maxLength int) []string {
	if maxLength < 1 {
		maxLength = 1
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	remaining := runes

	for len(remaining) > 0 {
		if len(remaining) <= maxLength {
			chunks = append(chunks, string(remaining))
			break
		}

		window := remaining[:maxLength]
		pos := splitPos(window, maxLength)
		// A zero split position would never consume input; force a hard cut.
		if pos <= 0 {
			pos = maxLength
		}

		chunks = append(chunks, strings.TrimRight(string(remaining[:pos]), " \t\n"))
		remaining = trimLeft(remaining[pos:])
	}

	return chunks
}

// splitPos picks the cut position within the window: the last paragraph
// break, line break, or space, each accepted only at or past the midpoint;
// otherwise exactly maxLength (hard cut).
func splitPos(window []rune, maxLength int) int {
	s := string(window)
	mid := maxLength / 2

	for _, sep := range []string{"\n\n", "\n", " "} {
		if pos := lastRuneIndex(s, sep); pos != -1 && pos >= mid {
			return pos
		}
	}
	return maxLength
}

// lastRuneIndex is strings.LastIndex measured in runes instead of bytes.
func lastRuneIndex(s, sep string) int {
	byteIdx := strings.LastIndex(s, sep)
	if byteIdx == -1 {
		return -1
	}
	return len([]rune(s[:byteIdx]))
}

func trimLeft(r []rune) []rune {
	i := 0
	for i < len(r) && (r[i] == ' ' || r[i] == '\t' || r[i] == '\n') {
		i++
	}
	return r[i:]
}
