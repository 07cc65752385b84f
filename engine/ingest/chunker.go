package ingest

import "strings"

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 500
	// DefaultOverlap is how many trailing characters carry into the next chunk.
	DefaultOverlap = 200
)

// chunkText splits text into chunks of at most size characters, preferring
// newline boundaries. Consecutive chunks share up to overlap characters of
// trailing lines so context is not cut mid-thought. Lines longer than size
// are hard-split.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) > size {
			lines = append(lines, hardSplit(line, size, overlap)...)
			continue
		}
		lines = append(lines, line)
	}

	var chunks []string
	var cur []string
	curLen := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, "\n"))

		// Seed the next chunk with the trailing lines that fit in the
		// overlap window.
		var tail []string
		tailLen := 0
		for i := len(cur) - 1; i >= 0; i-- {
			n := len(cur[i])
			if tailLen > 0 {
				n++ // joining newline
			}
			if tailLen+n > overlap {
				break
			}
			tail = append([]string{cur[i]}, tail...)
			tailLen += n
		}
		cur = tail
		curLen = tailLen
	}

	for _, line := range lines {
		n := len(line)
		if curLen > 0 {
			n++
		}
		if curLen+n > size {
			flush()
			n = len(line)
			if curLen > 0 {
				n++
			}
		}
		cur = append(cur, line)
		curLen += n
	}
	if len(cur) > 0 {
		// Avoid emitting a final chunk that is purely the overlap from the
		// previous one.
		last := strings.Join(cur, "\n")
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], last) {
			chunks = append(chunks, last)
		}
	}
	return chunks
}

// hardSplit cuts an oversized line into size-length pieces stepping by
// size-overlap, so adjacent pieces still overlap.
func hardSplit(line string, size, overlap int) []string {
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(line); start += step {
		end := start + size
		if end >= len(line) {
			out = append(out, line[start:])
			break
		}
		out = append(out, line[start:end])
	}
	return out
}
