package document

// IDKey is the key carrying internal row identifiers.
const IDKey = "id"

// StripKey returns a rebuilt copy of n with every mapping entry named key
// removed at every depth. Mappings are recursed into directly, sequences are
// filtered element by element and scalars are returned untouched.
func StripKey(n Node, key string) Node {
	switch t := n.(type) {
	case Mapping:
		out := make(Mapping, len(t))
		for k, v := range t {
			if k == key {
				continue
			}
			out[k] = StripKey(v, key)
		}
		return out
	case Sequence:
		out := make(Sequence, len(t))
		for i, v := range t {
			out[i] = StripKey(v, key)
		}
		return out
	default:
		return n
	}
}

// StripIDs removes every "id" key from m.
func StripIDs(m Mapping) Mapping {
	return StripKey(m, IDKey).(Mapping)
}
