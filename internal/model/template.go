// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"strconv"
	"strings"
)

// An output template is written in job documents as a quoted HCL string but
// kept on the Job as bare template source. The two differ only in the
// backslash escapes of literal text. Interpolation and directive sequences
// are copied through unchanged in both directions.

// unquoteTemplate turns the text between the quotes of a template attribute
// into bare template source.
func unquoteTemplate(quoted string) string {
	return mapLiterals(quoted, true, unescapeLiteral)
}

// quoteTemplate turns bare template source into text that can be placed
// between the quotes of a template attribute.
func quoteTemplate(src string) string {
	return mapLiterals(src, false, escapeLiteral)
}

// mapLiterals applies f to every run of literal text in template source. A
// backslash only escapes the next character when quoted is set.
func mapLiterals(s string, quoted bool, f func(string) string) string {
	var out, lit strings.Builder
	flush := func() {
		out.WriteString(f(lit.String()))
		lit.Reset()
	}
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "$${"), strings.HasPrefix(s[i:], "%%{"):
			lit.WriteString(s[i : i+3])
			i += 3
		case strings.HasPrefix(s[i:], "${"), strings.HasPrefix(s[i:], "%{"):
			flush()
			end := sequenceEnd(s, i+2)
			out.WriteString(s[i:end])
			i = end
		case quoted && s[i] == '\\' && i+1 < len(s):
			lit.WriteString(s[i : i+2])
			i += 2
		default:
			lit.WriteByte(s[i])
			i++
		}
	}
	flush()
	return out.String()
}

// sequenceEnd returns the index just past the brace closing the sequence
// whose body starts at i, or len(s) when it is never closed.
func sequenceEnd(s string, i int) int {
	depth, inString := 1, false
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case inString && c == '\\':
			i++
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

func unescapeLiteral(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch c := s[i]; c {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\', '"':
			b.WriteByte(c)
		case 'u', 'U':
			n := 4
			if c == 'U' {
				n = 8
			}
			if i+n < len(s) {
				if r, err := strconv.ParseUint(s[i+1:i+1+n], 16, 32); err == nil {
					b.WriteRune(rune(r))
					i += n
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte('\\')
			b.WriteByte(c)
		}
	}
	return b.String()
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
