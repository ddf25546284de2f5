package chess

import (
	"regexp"
	"strings"
	"unicode"
)

// zeroCastle matches castling written with digits ("0-0", "0-0-0").
var zeroCastle = regexp.MustCompile(`0-0(-0)?`)

// normalizeCastling rewrites digit castling to the letter form the PGN
// decoder expects. Results such as "1-0" never match.
func normalizeCastling(pgn string) string {
	var b strings.Builder
	last := 0
	for _, loc := range zeroCastle.FindAllStringIndex(pgn, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && !strings.ContainsRune(" \t\n\r.(", rune(pgn[start-1])) {
			continue
		}
		if end < len(pgn) && !strings.ContainsRune(" \t\n\r)+#!?", rune(pgn[end])) {
			continue
		}
		b.WriteString(pgn[last:start])
		b.WriteString(strings.ReplaceAll(pgn[start:end], "0", "O"))
		last = end
	}
	b.WriteString(pgn[last:])
	return b.String()
}

// sanTokens returns the main-line move tokens of PGN text. Tag pairs,
// comments, variations, move numbers, NAGs and result markers are skipped.
// Legality is not checked, so it also counts moves the decoder would refuse.
func sanTokens(pgn string) []string {
	var (
		sans []string
		tok  strings.Builder
	)
	flush := func() {
		if tok.Len() == 0 {
			return
		}
		if san, ok := sanToken(tok.String()); ok {
			sans = append(sans, san)
		}
		tok.Reset()
	}

	depth := 0 // variation nesting
	for i := 0; i < len(pgn); i++ {
		c := pgn[i]
		switch {
		case c == '{':
			flush()
			i = skipTo(pgn, i, '}')
		case c == ';':
			flush()
			i = skipTo(pgn, i, '\n')
		case c == '(':
			flush()
			depth++
		case c == ')':
			flush()
			if depth > 0 {
				depth--
			}
		case c == '[' && depth == 0:
			flush()
			i = skipTo(pgn, i, ']')
		case depth > 0:
			// inside a variation
		case unicode.IsSpace(rune(c)):
			flush()
		default:
			tok.WriteByte(c)
		}
	}
	flush()
	return sans
}

// skipTo returns the index of the next c at or after i, or len(s).
func skipTo(s string, i int, c byte) int {
	end := strings.IndexByte(s[i:], c)
	if end < 0 {
		return len(s)
	}
	return i + end
}

// sanToken extracts a SAN move from a raw token, if it carries one.
func sanToken(s string) (string, bool) {
	switch s {
	case "*", "1-0", "0-1", "1/2-1/2":
		return "", false
	}
	if strings.HasPrefix(s, "$") {
		return "", false
	}

	// Strip a move number prefix: "12." "12..." or "12.e4".
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && s[i] == '.' {
		for i < len(s) && s[i] == '.' {
			i++
		}
		s = s[i:]
	} else if i == len(s) {
		return "", false
	}

	s = strings.TrimRight(s, "!?")
	if s == "" {
		return "", false
	}
	return s, true
}
