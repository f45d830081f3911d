package parse

import "tlog.app/go/errors"

// word consumes w if it is the next token. Words ending in an ident
// char only match on a token boundary, so word("br") does not eat
// the head of "brif".
func (s *state) word(w string) bool {
	s.skipSpace()

	if len(s.b)-s.i < len(w) {
		return false
	}

	for j := 0; j < len(w); j++ {
		if s.b[s.i+j] != w[j] {
			return false
		}
	}

	if identChar(w[len(w)-1]) && s.i+len(w) < len(s.b) && identChar(s.b[s.i+len(w)]) {
		return false
	}

	s.i += len(w)

	return true
}

func (s *state) ident() (string, error) {
	s.skipSpace()

	st := s.i

	for s.i < len(s.b) && identChar(s.b[s.i]) {
		s.i++
	}

	if s.i == st {
		return "", errors.New("name expected")
	}

	return string(s.b[st:s.i]), nil
}

func identChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func (s *state) skipSpace() {
	for s.i < len(s.b) {
		switch s.b[s.i] {
		case ' ', '\t', '\r':
			s.i++
		default:
			return
		}
	}
}

// skipLines skips spaces, comments and newlines.
func (s *state) skipLines() {
	for {
		s.skipSpace()

		if s.i == len(s.b) {
			return
		}

		switch s.b[s.i] {
		case '\n':
			s.i++
		case ';':
			for s.i < len(s.b) && s.b[s.i] != '\n' {
				s.i++
			}
		default:
			return
		}
	}
}

func (s *state) atEndOfLine() bool {
	s.skipSpace()

	return s.i == len(s.b) || s.b[s.i] == '\n' || s.b[s.i] == ';'
}

// endOfLine consumes the rest of the line, comment included.
// It reports false if code is left before the line break.
func (s *state) endOfLine() bool {
	if !s.atEndOfLine() {
		return false
	}

	for s.i < len(s.b) && s.b[s.i] != '\n' {
		s.i++
	}

	if s.i < len(s.b) {
		s.i++
	}

	return true
}

func (s *state) line() int {
	n := 1

	for _, c := range s.b[:s.i] {
		if c == '\n' {
			n++
		}
	}

	return n
}
