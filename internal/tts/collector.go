package tts

import "strings"

// FlushCollector coalesces streamed LLM token text into speakable fragments.
// It flushes on a sentence-ending boundary (period, exclamation, question
// mark), on a comma once at least 10 characters are buffered, or once the
// buffer exceeds 50 characters regardless of punctuation.
type FlushCollector struct {
	pending string
}

func NewFlushCollector() *FlushCollector {
	return &FlushCollector{}
}

// Consume appends a token delta and returns zero or more fragments that are
// ready to be sent to the synthesis stream.
func (c *FlushCollector) Consume(delta string) []string {
	if delta == "" {
		return nil
	}
	c.pending += delta
	return c.drain(false)
}

// Finalize flushes whatever remains buffered, used once the generation turn
// ends (Done) so no trailing text is stranded unspoken.
func (c *FlushCollector) Finalize() []string {
	return c.drain(true)
}

func (c *FlushCollector) drain(force bool) []string {
	var out []string
	for {
		segment, rest, ok := nextFragment(c.pending, force)
		if !ok {
			break
		}
		c.pending = rest
		if trimmed := strings.TrimSpace(segment); trimmed != "" {
			out = append(out, segment)
		}
	}
	return out
}

func nextFragment(input string, force bool) (segment, rest string, ok bool) {
	if input == "" {
		return "", "", false
	}
	if idx := boundaryIndex(input); idx >= 0 {
		return input[:idx+1], input[idx+1:], true
	}
	if len(input) > 50 {
		return input, "", true
	}
	if force {
		return input, "", true
	}
	return "", input, false
}

// boundaryIndex returns the index of the first natural flush boundary in
// input, or -1 if none exists yet.
func boundaryIndex(input string) int {
	for i, r := range input {
		switch r {
		case '.', '!', '?':
			return i
		case ',':
			if i+1 >= 10 {
				return i
			}
		}
	}
	return -1
}
