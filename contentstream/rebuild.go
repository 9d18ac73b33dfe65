package contentstream

import "bytes"

// Rewrite replaces the body of one token.
type Rewrite struct {
	Operands []string
	Op       string
}

// Rebuild concatenates tokens in order. Rewritten tokens keep their
// leading whitespace and comments and are written single-space separated;
// everything else is copied from src.
func Rebuild(src []byte, tokens []Token, rewrites map[int]Rewrite) []byte {
	var buf bytes.Buffer
	buf.Grow(len(src) + 24*len(rewrites))
	for i, tok := range tokens {
		rw, ok := rewrites[i]
		if !ok {
			buf.Write(src[tok.Start:tok.End])
			continue
		}
		lead := src[tok.Start:tok.Body]
		buf.Write(lead)
		if len(lead) == 0 && i > 0 {
			buf.WriteByte(' ')
		}
		for _, o := range rw.Operands {
			buf.WriteString(o)
			buf.WriteByte(' ')
		}
		buf.WriteString(rw.Op)
	}
	return buf.Bytes()
}
