package parser

import (
	"fmt"
	"strings"
)

// tokenize splits a curl command line into arguments with POSIX shell
// quoting rules: single quotes are literal, double quotes honour \" \\ \$
// and \`, a backslash outside quotes escapes the next character, and a
// backslash-newline joins lines. Quoted empty strings are kept.
func tokenize(input string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		started bool
		quote   rune
	)
	flush := func() {
		if started {
			tokens = append(tokens, current.String())
			current.Reset()
			started = false
		}
	}

	runes := []rune(strings.TrimSpace(input))
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch quote {
		case '\'':
			if ch == '\'' {
				quote = 0
			} else {
				current.WriteRune(ch)
			}
			continue
		case '"':
			switch {
			case ch == '"':
				quote = 0
			case ch == '\\' && i+1 < len(runes) && strings.ContainsRune("\"\\$`\n", runes[i+1]):
				i++
				if runes[i] != '\n' {
					current.WriteRune(runes[i])
				}
			default:
				current.WriteRune(ch)
			}
			continue
		}

		switch ch {
		case '\'', '"':
			quote = ch
			started = true
		case '\\':
			if i+1 == len(runes) {
				current.WriteRune(ch)
				started = true
				continue
			}
			i++
			switch runes[i] {
			case '\n':
				// line continuation
			case '\r':
				if i+1 < len(runes) && runes[i+1] == '\n' {
					i++
				}
			default:
				current.WriteRune(runes[i])
				started = true
			}
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			current.WriteRune(ch)
			started = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", quote)
	}
	flush()
	return tokens, nil
}
