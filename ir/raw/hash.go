package raw

import (
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Digest returns a BLAKE2b-256 hash of obj's structure and, for streams,
// their data. References are hashed as references, so equal digests
// mean byte-identical objects.
func Digest(obj Object) [32]byte {
	h, _ := blake2b.New256(nil)
	writeHash(h, obj)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeHash(h hash.Hash, obj Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case Name:
		fmt.Fprintf(h, "%q", t.Value())
	case Number:
		if t.IsInteger() {
			fmt.Fprint(h, "i", t.Int())
		} else {
			fmt.Fprint(h, "r", t.Float())
		}
	case Boolean:
		fmt.Fprint(h, t.Value())
	case String:
		fmt.Fprintf(h, "%d:", len(t.Value()))
		h.Write(t.Value())
	case Reference:
		fmt.Fprintf(h, "%d %d R", t.Ref().Num, t.Ref().Gen)
	case *ArrayObj:
		fmt.Fprint(h, "[")
		for _, v := range t.Items {
			writeHash(h, v)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case *DictObj:
		fmt.Fprint(h, "<<")
		for _, k := range t.SortedKeys() {
			fmt.Fprintf(h, "%q", k)
			writeHash(h, t.KV[k])
		}
		fmt.Fprint(h, ">>")
	case *StreamObj:
		writeHash(h, t.Dict)
		fmt.Fprintf(h, "%d:", len(t.Data))
		h.Write(t.Data)
	}
}
