package filters

import "github.com/wudi/pdfdark/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. The params slice is aligned with the names; entries without
// parameters are nil.
func ExtractFilters(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary
	if dict == nil {
		return nil, nil
	}

	filterObj, ok := dict.Get(raw.NameLiteral("Filter"))
	if !ok {
		filterObj, ok = dict.Get(raw.NameLiteral("F"))
		if !ok {
			return names, params
		}
	}
	switch f := filterObj.(type) {
	case raw.Name:
		names = append(names, canonicalName(f.Value()))
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.Name); ok {
				names = append(names, canonicalName(n.Value()))
			}
		}
	}

	params = make([]raw.Dictionary, len(names))
	pObj, ok := dict.Get(raw.NameLiteral("DecodeParms"))
	if !ok {
		pObj, ok = dict.Get(raw.NameLiteral("DP"))
	}
	if ok {
		switch p := pObj.(type) {
		case *raw.DictObj:
			if len(params) > 0 {
				params[0] = p
			}
		case *raw.ArrayObj:
			for i, item := range p.Items {
				if d, ok := item.(*raw.DictObj); ok && i < len(params) {
					params[i] = d
				}
			}
		}
	}
	return names, params
}

// IsImageCodec reports whether name is an image compression filter that
// yields pixels rather than bytes.
func IsImageCodec(name string) bool {
	switch canonicalName(name) {
	case "DCTDecode", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode":
		return true
	}
	return false
}

// SplitImageCodec separates a trailing image codec from the byte filters
// that precede it.
func SplitImageCodec(names []string, params []raw.Dictionary) ([]string, []raw.Dictionary, string) {
	if n := len(names); n > 0 && IsImageCodec(names[n-1]) {
		last := canonicalName(names[n-1])
		if len(params) >= n {
			params = params[:n-1]
		}
		return names[:n-1], params, last
	}
	return names, params, ""
}
