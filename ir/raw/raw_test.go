package raw

import "testing"

func TestResolveFollowsReferences(t *testing.T) {
	doc := NewDocument()
	inner := Dict()
	inner.Set(NameLiteral("Type"), NameLiteral("Page"))
	doc.Objects[ObjectRef{Num: 2}] = inner
	doc.Objects[ObjectRef{Num: 1}] = Ref(2, 0)

	d, ok := doc.ResolveDict(Ref(1, 0))
	if !ok || d != inner {
		t.Fatalf("expected chained reference to resolve to page dict")
	}
	if _, ok := doc.Resolve(Ref(9, 0)).(NullObj); !ok {
		t.Fatalf("missing object should resolve to null")
	}

	// a reference cycle terminates
	doc.Objects[ObjectRef{Num: 3}] = Ref(4, 0)
	doc.Objects[ObjectRef{Num: 4}] = Ref(3, 0)
	if _, ok := doc.Resolve(Ref(3, 0)).(NullObj); !ok {
		t.Fatalf("reference cycle should resolve to null")
	}
}

func TestDocumentRefs(t *testing.T) {
	doc := NewDocument()
	doc.Objects[ObjectRef{Num: 5}] = NullObj{}
	doc.Objects[ObjectRef{Num: 2}] = NullObj{}
	doc.Objects[ObjectRef{Num: 6}] = NumberInt(7)
	refs := doc.Refs()
	if len(refs) != 3 || refs[0].Num != 2 || refs[2].Num != 6 {
		t.Fatalf("unexpected ref order: %v", refs)
	}
}

func TestDictKeysSorted(t *testing.T) {
	d := Dict()
	d.Set(NameLiteral("Width"), NumberInt(1))
	d.Set(NameLiteral("BitsPerComponent"), NumberInt(8))
	d.Set(NameLiteral("Height"), NumberInt(1))
	keys := d.Keys()
	if keys[0].Value() != "BitsPerComponent" || keys[2].Value() != "Width" {
		t.Fatalf("keys not sorted: %v", keys)
	}
	if n, ok := d.NameValue("Width"); ok || n != "" {
		t.Fatalf("NameValue should reject numbers")
	}
}

func TestDigest(t *testing.T) {
	mk := func(data string) *StreamObj {
		d := Dict()
		d.KV["Subtype"] = NameLiteral("Image")
		d.KV["Width"] = NumberInt(2)
		return NewStream(d, []byte(data))
	}
	if Digest(mk("ab")) != Digest(mk("ab")) {
		t.Fatalf("equal streams hash differently")
	}
	if Digest(mk("ab")) == Digest(mk("ac")) {
		t.Fatalf("different data hash equally")
	}
	other := mk("ab")
	other.Dict.KV["Width"] = NumberFloat(2)
	if Digest(mk("ab")) == Digest(other) {
		t.Fatalf("integer and real hash equally")
	}
}
