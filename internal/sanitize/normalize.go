package sanitize

import (
	"strings"
	"unicode"
)

var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "‶", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'", "‵", "'",
)

// Normalize rewrites near-JSON into something encoding/json is likely to
// accept. It tracks whether it is inside a string literal so that comment
// stripping and comma removal never touch string content.
func Normalize(s string) string {
	in := []rune(smartQuotes.Replace(s))
	out := make([]rune, 0, len(in)+16)
	var closers []rune
	inString := false

	for i := 0; i < len(in); i++ {
		r := in[i]

		if inString {
			switch {
			case r == '\\':
				if i+1 >= len(in) {
					continue
				}
				next := in[i+1]
				switch {
				case strings.ContainsRune(`"\/bfnrt`, next):
					out = append(out, r, next)
					i++
				case next == 'u' && i+5 < len(in) && isHex(in[i+2:i+6]):
					out = append(out, in[i:i+6]...)
					i += 5
				}
				// Anything else is an invalid escape: the backslash is dropped
				// and the next rune is handled on its own.
			case r == '"':
				if closesString(in, i+1) {
					inString = false
					out = append(out, r)
				} else {
					out = append(out, '\\', '"')
				}
			case r == '\n':
				out = append(out, '\\', 'n')
			case r == '\t':
				out = append(out, '\\', 't')
			case isControl(r):
			default:
				out = append(out, r)
			}
			continue
		}

		switch {
		case r == '"':
			inString = true
			out = append(out, r)
		case r == '/' && i+1 < len(in) && in[i+1] == '/':
			for i+1 < len(in) && in[i+1] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(in) && in[i+1] == '*':
			i += 2
			for i < len(in) && !(in[i] == '*' && i+1 < len(in) && in[i+1] == '/') {
				i++
			}
			i++
		case r == '{':
			closers = append(closers, '}')
			out = append(out, r)
		case r == '[':
			closers = append(closers, ']')
			out = append(out, r)
		case r == '}' || r == ']':
			out = trimTrailingComma(out)
			if n := len(closers); n > 0 && closers[n-1] == r {
				closers = closers[:n-1]
			}
			out = append(out, r)
		case r == '\n' || r == '\r' || r == '\t':
			out = append(out, ' ')
		case isControl(r):
		default:
			out = append(out, r)
		}
	}

	// Truncated output: close whatever is still open.
	if inString {
		out = append(out, '"')
	}
	for j := len(closers) - 1; j >= 0; j-- {
		out = trimTrailingComma(out)
		if last, ok := lastNonSpace(out); ok && last == ':' {
			out = append(out, []rune("null")...)
		}
		out = append(out, closers[j])
	}
	return strings.TrimSpace(string(out))
}

// closesString reports whether a quote followed by in[j:] ends a string
// literal rather than sitting inside one.
func closesString(in []rune, j int) bool {
	for ; j < len(in); j++ {
		if !unicode.IsSpace(in[j]) && !isControl(in[j]) {
			break
		}
	}
	if j >= len(in) {
		return true
	}
	if in[j] == '/' && j+1 < len(in) && (in[j+1] == '/' || in[j+1] == '*') {
		return true
	}
	return strings.ContainsRune(",}]:", in[j])
}

func trimTrailingComma(out []rune) []rune {
	end := len(out)
	for end > 0 && unicode.IsSpace(out[end-1]) {
		end--
	}
	if end > 0 && out[end-1] == ',' {
		return out[:end-1]
	}
	return out
}

func lastNonSpace(out []rune) (rune, bool) {
	for i := len(out) - 1; i >= 0; i-- {
		if !unicode.IsSpace(out[i]) {
			return out[i], true
		}
	}
	return 0, false
}

func isControl(r rune) bool {
	return (r >= 0x00 && r <= 0x1F) || (r >= 0x7F && r <= 0x9F)
}

func isHex(rs []rune) bool {
	for _, r := range rs {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
