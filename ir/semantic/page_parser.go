package semantic

import (
	"sort"

	"github.com/wudi/pdfdark/ir/raw"
)

type inheritedPageProps struct {
	MediaBox  *Rectangle
	Resources raw.Object
}

// Page is one page of the document in page-tree order.
type Page struct {
	doc      *Document
	number   int
	dict     *raw.DictObj
	MediaBox Rectangle

	contents []*Stream
	images   []*Image
	forms    []*Stream
}

// Number is the 1-based page number.
func (p *Page) Number() int { return p.number }

func (p *Page) ContentStreams() []*Stream { return p.contents }

// ImageObjects returns the distinct image XObjects the page and its forms
// draw, image masks excluded.
func (p *Page) ImageObjects() []*Image { return p.images }

// FormObjects returns the distinct form XObjects reachable from the page.
func (p *Page) FormObjects() []*Stream { return p.forms }

// AddUnderlay inserts data as a new content stream drawn before the
// existing ones.
func (p *Page) AddUnderlay(data []byte) {
	ref := p.doc.add(raw.NewStream(raw.Dict(), data))
	items := []raw.Object{raw.Ref(ref.Num, ref.Gen)}
	cur, ok := p.dict.Lookup("Contents")
	if ok {
		switch c := p.doc.raw.Resolve(cur).(type) {
		case *raw.ArrayObj:
			items = append(items, c.Items...)
		case *raw.StreamObj:
			items = append(items, cur)
		}
	}
	p.dict.KV["Contents"] = raw.NewArray(items...)
}

// parsePages walks the page tree depth first. Nodes seen before are
// skipped so a cyclic tree still terminates.
func (d *Document) parsePages(obj raw.Object, inherited inheritedPageProps, seen map[raw.ObjectRef]bool) []*Page {
	if ref, ok := obj.(raw.Reference); ok {
		if seen[ref.Ref()] {
			return nil
		}
		seen[ref.Ref()] = true
	}
	dict, ok := d.raw.ResolveDict(obj)
	if !ok {
		return nil
	}
	next := inherited
	if mb := d.rectangle(dict, "MediaBox"); mb != nil {
		next.MediaBox = mb
	}
	if res, ok := dict.Lookup("Resources"); ok {
		next.Resources = res
	}

	isPage := false
	if t, ok := dict.NameValue("Type"); ok {
		isPage = t == "Page"
	} else if _, hasKids := dict.Lookup("Kids"); !hasKids {
		isPage = true
	}
	if isPage {
		return []*Page{d.parsePage(dict, next)}
	}

	kids, ok := d.raw.ResolveArray(dict.KV["Kids"])
	if !ok {
		return nil
	}
	var pages []*Page
	for _, kid := range kids.Items {
		pages = append(pages, d.parsePages(kid, next, seen)...)
	}
	return pages
}

func (d *Document) parsePage(dict *raw.DictObj, inherited inheritedPageProps) *Page {
	page := &Page{doc: d, dict: dict, MediaBox: Rectangle{0, 0, 612, 792}}
	if inherited.MediaBox != nil {
		page.MediaBox = *inherited.MediaBox
	}
	if c, ok := dict.Lookup("Contents"); ok {
		page.contents = d.contentStreams(c)
	}
	res, _ := d.raw.ResolveDict(inherited.Resources)
	page.images, page.forms = d.collectXObjects(res)
	return page
}

func (d *Document) contentStreams(obj raw.Object) []*Stream {
	var refs []raw.Object
	switch v := d.raw.Resolve(obj).(type) {
	case *raw.ArrayObj:
		refs = v.Items
	case *raw.StreamObj:
		refs = []raw.Object{obj}
	}
	var out []*Stream
	for _, item := range refs {
		r, ok := item.(raw.Reference)
		if !ok {
			continue
		}
		if s, ok := d.raw.Resolve(r).(*raw.StreamObj); ok {
			out = append(out, d.stream(r.Ref(), s))
		}
	}
	return out
}

// collectXObjects gathers images and forms reachable from res, following
// form resources. Names are visited in sorted order so the result is
// stable.
func (d *Document) collectXObjects(res *raw.DictObj) ([]*Image, []*Stream) {
	var (
		images []*Image
		forms  []*Stream
		seen   = make(map[raw.ObjectRef]bool)
	)
	var visit func(res *raw.DictObj)
	visit = func(res *raw.DictObj) {
		if res == nil {
			return
		}
		xobjs, ok := d.raw.ResolveDict(res.KV["XObject"])
		if !ok {
			return
		}
		for _, name := range xobjs.SortedKeys() {
			r, ok := xobjs.KV[name].(raw.Reference)
			if !ok || seen[r.Ref()] {
				continue
			}
			seen[r.Ref()] = true
			s, ok := d.raw.Resolve(r).(*raw.StreamObj)
			if !ok {
				continue
			}
			switch sub, _ := s.Dict.NameValue("Subtype"); sub {
			case "Image":
				if m, ok := s.Dict.KV["ImageMask"].(raw.BoolObj); ok && m.V {
					continue
				}
				images = append(images, d.image(r.Ref(), s))
			case "Form":
				forms = append(forms, d.stream(r.Ref(), s))
				if fr, ok := d.raw.ResolveDict(s.Dict.KV["Resources"]); ok {
					visit(fr)
				}
			}
		}
	}
	visit(res)
	sort.SliceStable(images, func(i, j int) bool { return less(images[i].ref, images[j].ref) })
	sort.SliceStable(forms, func(i, j int) bool { return less(forms[i].ref, forms[j].ref) })
	return images, forms
}

func less(a, b raw.ObjectRef) bool {
	if a.Num != b.Num {
		return a.Num < b.Num
	}
	return a.Gen < b.Gen
}

func (d *Document) rectangle(dict *raw.DictObj, key string) *Rectangle {
	arr, ok := d.raw.ResolveArray(dict.KV[key])
	if !ok || arr.Len() != 4 {
		return nil
	}
	var v [4]float64
	for i, item := range arr.Items {
		n, ok := raw.NumberValue(d.raw.Resolve(item))
		if !ok {
			return nil
		}
		v[i] = n
	}
	return &Rectangle{
		LLX: min(v[0], v[2]), LLY: min(v[1], v[3]),
		URX: max(v[0], v[2]), URY: max(v[1], v[3]),
	}
}
