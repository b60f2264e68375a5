package sgf

// Properties is the ordered multi-value key store of one SGF node
// (keys keep insertion order, values repeat as in AB[aa][bb]).
// The zero value is ready to use.
type Properties struct {
	keys   []string
	values map[string][]string
}

func (p *Properties) Set(key string, values ...string) {
	if p.values == nil {
		p.values = make(map[string][]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append([]string(nil), values...)
}

func (p *Properties) Add(key string, values ...string) {
	p.Set(key, append(p.Get(key), values...)...)
}

func (p *Properties) Get(key string) []string {
	return append([]string(nil), p.values[key]...)
}

func (p *Properties) First(key string) (string, bool) {
	v := p.values[key]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func (p *Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *Properties) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i:i], p.keys[i+1:]...)
			break
		}
	}
}

func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p *Properties) Len() int {
	return len(p.keys)
}

func (p *Properties) Clone() Properties {
	var out Properties
	for _, k := range p.keys {
		out.Set(k, p.values[k]...)
	}
	return out
}
