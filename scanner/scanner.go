package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/pdfdark/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword and its payload
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, operators, >>, ], etc.)
)

var typeNames = [...]string{"dict", "array", "name", "string", "number", "boolean", "null", "ref", "stream", "inline image", "keyword"}

func (t TokenType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "token(" + strconv.Itoa(int(t)) + ")"
}

// Token is one lexical unit. Pos is the offset of its first byte and End
// the offset one past its last byte.
type Token struct {
	Type  TokenType
	Pos   int64
	End   int64
	Str   string // names (decoded), keywords
	Bytes []byte // strings (decoded), stream and inline image payloads
	Int   int64  // integers; object number for refs
	Gen   int    // generation for refs
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool // string was written in hex form
}

// Num returns the numeric value of a number token.
func (t Token) Num() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SetNextStreamLength(n int64)
	// SetNextInlineImage primes the scan of the next ID keyword: length is
	// the declared payload size (negative when unknown) and minScan the
	// number of payload bytes that may be skipped before looking for EI.
	SetNextInlineImage(length, minScan int64)
}

type Config struct {
	MaxStringLength int64
	MaxNameLength   int
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	// Content selects content stream syntax: no indirect references and
	// no stream keyword.
	Content  bool
	Recovery recovery.Strategy
}

type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	inlineLen     int64
	inlineMin     int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

// NewBytes returns a scanner over data without copying it.
func NewBytes(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1, inlineLen: -1}
}

func (s *pdfScanner) Position() int64             { return s.pos }
func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }
func (s *pdfScanner) SetNextInlineImage(length, minScan int64) {
	s.inlineLen, s.inlineMin = length, minScan
}
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		if s.arrayDepth > 0 {
			// An unclosed array at EOF is closed when the strategy allows it.
			if err := s.recover(errors.New("unclosed array at EOF"), "array"); err != nil {
				return Token{}, err
			}
			s.arrayDepth--
			return Token{Type: TokenKeyword, Str: "]", Pos: s.pos, End: s.pos}, nil
		}
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case ')', '{', '}':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	}
	return s.scanRegular()
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
		if s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			return Token{}, errors.New("name too long")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	truncated := false
	n := int64(len(s.data))
	for s.pos < n {
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.pos >= n {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < n && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < n; k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				if !truncated {
					buf.WriteByte(byte(val))
				}
			default:
				if !truncated {
					buf.WriteByte(translateEscape(esc))
				}
				s.pos++
			}
			continue
		}
		s.pos++
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				break
			}
		}
		if truncated {
			continue
		}
		buf.WriteByte(c)
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			// A fixed overflow keeps the first MaxStringLength bytes and
			// scans on to the closing parenthesis.
			if err := s.recover(errors.New("literal string too long"), "literal"); err != nil {
				return Token{}, err
			}
			buf.Truncate(int(s.cfg.MaxStringLength))
			truncated = true
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			if err := s.recover(errors.New("invalid character in hex string"), "hex"); err != nil {
				return Token{}, err
			}
			continue
		}
		hexbuf = append(hexbuf, c)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	// If odd number of nibbles, pad with 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		if err := s.recover(errors.New("hex string too long"), "hex"); err != nil {
			return Token{}, err
		}
		hexbuf = hexbuf[:2*s.cfg.MaxStringLength]
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

// scanRegular reads a run of regular characters and classifies it as a
// number, reference, boolean, null or keyword.
func (s *pdfScanner) scanRegular() (Token, error) {
	start := s.pos
	word := s.regularRun()
	if i, f, isInt, ok := parseNumber(word); ok {
		if isInt && !s.cfg.Content && i >= 0 {
			if ref, ok := s.tryRef(start, i); ok {
				return ref, nil
			}
		}
		return s.emit(Token{Type: TokenNumber, Int: i, Float: f, IsInt: isInt, Pos: start})
	}
	kw := string(word)
	switch kw {
	case "true", "false":
		return s.emit(Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start})
	case "null":
		return s.emit(Token{Type: TokenNull, Str: kw, Pos: start})
	case "stream":
		if !s.cfg.Content {
			return s.scanStream(start)
		}
	case "ID":
		return s.scanInlineImage(start)
	}
	return s.emit(Token{Type: TokenKeyword, Str: kw, Pos: start})
}

func (s *pdfScanner) regularRun() []byte {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// lone delimiter not handled by Next
		s.pos++
	}
	return s.data[start:s.pos]
}

// tryRef looks for "<gen> R" after an object number; the scanner position
// is left untouched when the lookahead fails.
func (s *pdfScanner) tryRef(start, num int64) (Token, bool) {
	save := s.pos
	s.skipWSAndComments()
	genStart := s.pos
	for s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		s.pos++
	}
	if s.pos == genStart || (s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos])) {
		s.pos = save
		return Token{}, false
	}
	gen, err := strconv.Atoi(string(s.data[genStart:s.pos]))
	if err != nil {
		s.pos = save
		return Token{}, false
	}
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
		(s.pos+1 == int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
		s.pos++
		return Token{Type: TokenRef, Int: num, Gen: gen, IsInt: true, Pos: start, End: s.pos}, true
	}
	s.pos = save
	return Token{}, false
}

// parseNumber accepts an optional sign, digits and at most one decimal
// point. Exponents are not PDF syntax and make the word a keyword.
func parseNumber(word []byte) (int64, float64, bool, bool) {
	if len(word) == 0 {
		return 0, 0, false, false
	}
	i := 0
	if word[0] == '+' || word[0] == '-' {
		i++
	}
	digits, dots := 0, 0
	for ; i < len(word); i++ {
		switch c := word[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return 0, 0, false, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, 0, false, false
	}
	str := string(word)
	if dots == 0 {
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			return n, float64(n), true, true
		}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		// out-of-range integers still carry a usable magnitude
		return 0, f, false, f != 0
	}
	return 0, f, false, true
}

// scanStream consumes the payload after a 'stream' keyword up to 'endstream'.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	n := int64(len(s.data))
	// PDF 7.3.8: stream keyword must be followed by EOL before data
	switch {
	case s.pos < n && s.data[s.pos] == '\r':
		s.pos++
		if s.pos < n && s.data[s.pos] == '\n' {
			s.pos++
		}
	case s.pos < n && s.data[s.pos] == '\n':
		s.pos++
	default:
		if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
			return Token{}, err
		}
		for s.pos < n && (s.data[s.pos] == ' ' || s.data[s.pos] == '\t') {
			s.pos++
		}
	}
	dataStart := s.pos
	l := s.nextStreamLen
	s.nextStreamLen = -1
	if l >= 0 && s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
		if err := s.recover(errors.New("stream too long"), "stream"); err != nil {
			return Token{}, err
		}
		// the endstream search below cuts the payload to the limit
		l = -1
	}
	if l >= 0 {
		if dataStart+l > n {
			if err := s.recover(errors.New("stream ended before declared length"), "stream"); err != nil {
				return Token{}, err
			}
			l = n - dataStart
		}
		end := dataStart + l
		after := end
		for after < n && isWhitespace(s.data[after]) {
			after++
		}
		if bytes.HasPrefix(s.data[after:], []byte("endstream")) {
			s.pos = after + int64(len("endstream"))
			return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start})
		}
		// declared length is wrong; fall back to searching for endstream
		if err := s.recover(errors.New("stream length mismatch"), "stream"); err != nil {
			return Token{}, err
		}
	}
	idx := s.findEndstream(dataStart)
	if idx < 0 {
		if err := s.recover(errors.New("endstream not found"), "stream"); err != nil {
			return Token{}, err
		}
		s.pos = n
		return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:n], Pos: start})
	}
	end := idx
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		if err := s.recover(errors.New("stream too long"), "stream"); err != nil {
			return Token{}, err
		}
		end = dataStart + s.cfg.MaxStreamLength
	}
	s.pos = idx + int64(len("endstream"))
	return s.emit(Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start})
}

func (s *pdfScanner) findEndstream(dataStart int64) int64 {
	needle := []byte("endstream")
	from := dataStart
	for {
		rest := s.data[from:]
		if s.cfg.MaxStreamScan > 0 {
			limit := dataStart + s.cfg.MaxStreamScan + int64(len(needle)) - from
			if limit < int64(len(rest)) {
				if limit <= 0 {
					return -1
				}
				rest = rest[:limit]
			}
		}
		i := bytes.Index(rest, needle)
		if i < 0 {
			return -1
		}
		at := from + int64(i)
		after := at + int64(len(needle))
		if after >= int64(len(s.data)) || isDelimiter(s.data[after]) {
			return at
		}
		from = at + 1
	}
}

// scanInlineImage consumes the payload after an ID keyword through the
// closing EI. With a declared length the payload is exactly that many
// bytes; otherwise EI must be preceded by whitespace and followed by
// whitespace or the end of data.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	length, minScan := s.inlineLen, s.inlineMin
	s.inlineLen, s.inlineMin = -1, 0
	n := int64(len(s.data))
	if s.pos < n && isWhitespace(s.data[s.pos]) {
		s.pos++
	} else if err := s.recover(errors.New("inline image missing whitespace after ID"), "inline_image"); err != nil {
		return Token{}, err
	}
	dataStart := s.pos
	if length >= 0 {
		end := dataStart + length
		at := end
		for at < n && isWhitespace(s.data[at]) {
			at++
		}
		if end <= n && at+2 <= n && s.data[at] == 'E' && s.data[at+1] == 'I' && (at+2 == n || isDelimiter(s.data[at+2])) {
			s.pos = at + 2
			return s.emit(Token{Type: TokenInlineImage, Bytes: s.data[dataStart:end], Pos: start})
		}
		// declared length is wrong; fall back to searching for EI
		if err := s.recover(errors.New("inline image: EI not found after declared length"), "inline_image"); err != nil {
			return Token{}, err
		}
	}
	for at := dataStart + minScan; at+2 <= n; at++ {
		if s.data[at] != 'E' || s.data[at+1] != 'I' {
			continue
		}
		if at == dataStart || !isWhitespace(s.data[at-1]) {
			continue
		}
		if at+2 < n && !isWhitespace(s.data[at+2]) {
			continue
		}
		if s.cfg.MaxInlineImage > 0 && at-dataStart > s.cfg.MaxInlineImage {
			break
		}
		s.pos = at + 2
		return s.emit(Token{Type: TokenInlineImage, Bytes: s.data[dataStart:at], Pos: start})
	}
	msg := "unterminated inline image"
	if s.cfg.MaxInlineImage > 0 && n-dataStart > s.cfg.MaxInlineImage {
		msg = "inline image too long"
	}
	if err := s.recover(errors.New(msg), "inline_image"); err != nil {
		return Token{}, err
	}
	s.pos = n
	return s.emit(Token{Type: TokenInlineImage, Bytes: s.data[dataStart:n], Pos: start})
}

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(nil, err, location)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	tok.End = s.pos
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			if err := s.recover(errors.New("array depth exceeded"), "array"); err != nil {
				return Token{}, err
			}
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			if err := s.recover(errors.New("dict depth exceeded"), "dict"); err != nil {
				return Token{}, err
			}
		}
	case TokenKeyword:
		switch tok.Str {
		case "]":
			if s.arrayDepth == 0 {
				if err := s.recover(errors.New("array depth underflow"), "array"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.arrayDepth--
		case ">>":
			if s.dictDepth == 0 {
				if err := s.recover(errors.New("dict depth underflow"), "dict"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.dictDepth--
		}
	}
	return tok, nil
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

// IsWhitespace reports whether c is PDF whitespace.
func IsWhitespace(c byte) bool { return isWhitespace(c) }

// IsDelimiter reports whether c ends a regular-character run.
func IsDelimiter(c byte) bool { return isDelimiter(c) }

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
