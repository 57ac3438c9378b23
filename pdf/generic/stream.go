package generic

import (
	"github.com/georgepadayatti/signflow/pdf/filters"
)

// NewFlateStream compresses data and returns a stream carrying
// /Filter /FlateDecode.
func NewFlateStream(dict *Dictionary, data []byte) (*Stream, error) {
	enc, err := filters.Flate{}.Encode(data, nil)
	if err != nil {
		return nil, err
	}
	s := NewStream(dict, enc)
	s.Dict.Set("Filter", Name("FlateDecode"))
	return s, nil
}

// Decoded returns the stream payload with its filters removed.
func (s *Stream) Decoded() ([]byte, error) {
	names, params := s.filterChain()
	if len(names) == 0 {
		return s.Data, nil
	}
	return filters.DecodeStream(s.Data, names, params)
}

func (s *Stream) filterChain() ([]string, []filters.Params) {
	var names []string
	switch f := s.Dict.Get("Filter").(type) {
	case Name:
		names = []string{string(f)}
	case Array:
		for _, item := range f {
			if n, ok := item.(Name); ok {
				names = append(names, string(n))
			}
		}
	}

	var dicts []*Dictionary
	switch p := s.Dict.Get("DecodeParms").(type) {
	case *Dictionary:
		dicts = []*Dictionary{p}
	case Array:
		for _, item := range p {
			d, _ := item.(*Dictionary)
			dicts = append(dicts, d)
		}
	}
	params := make([]filters.Params, len(dicts))
	for i, d := range dicts {
		if d == nil {
			continue
		}
		params[i] = filters.Params{}
		for _, k := range d.Keys() {
			if v, ok := d.Int(k); ok {
				params[i][k] = v
			}
		}
	}
	return names, params
}
