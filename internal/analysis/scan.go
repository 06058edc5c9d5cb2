package analysis

// Candidates returns every balanced top-level {...} span in text, in order of
// appearance. Braces inside JSON string literals do not count. An opening
// brace that is never closed is treated as prose and scanning resumes just
// after it, so a stray "{" cannot hide a later object.
func Candidates(text string) []string {
	var spans []string

	for from := 0; from < len(text); {
		found, open := scan(text, from)
		spans = append(spans, found...)
		if open < 0 {
			break
		}
		from = open + 1
	}

	return spans
}

// scan walks text from offset from and returns the closed spans it finds.
// open is the index of a top-level brace still unclosed at the end of text,
// or -1.
func scan(text string, from int) (spans []string, open int) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := from; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			// Quotes only matter once we are inside an object; stray quotes in
			// prose must not hide the next brace.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}

	if depth > 0 {
		return spans, start
	}
	return spans, -1
}
