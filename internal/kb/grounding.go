package kb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BindingKind tags one assignment inside a grounding.
type BindingKind int

const (
	BindDirect BindingKind = iota
	BindReverse
	BindVStructure
	BindHop
	BindObject
)

func (k BindingKind) String() string {
	switch k {
	case BindDirect:
		return "direct"
	case BindReverse:
		return "reverse"
	case BindVStructure:
		return "v-structure"
	case BindHop:
		return "hop"
	case BindObject:
		return "object"
	}
	return "unknown"
}

// Binding assigns one identifier to one positional slot of a graph: a
// relation (with direction), a hop relation, or an object entity, always for
// the edge at Index.
type Binding struct {
	Kind  BindingKind
	Index int
	ID    string
}

// Grounding is one complete query answer: a set of bindings for a graph's
// edges. Slots it does not mention keep their current values when applied.
type Grounding []Binding

// DecodeGrounding parses a backend result record into bindings. Record keys
// follow the wire grammar (edge index i, zero based):
//
//	r{i}d    direct relation
//	r{i}r    reverse relation
//	r{i}v    v-structure relation
//	hop{i}v  hop relation
//	e2{i}    object entity
//
// Keys outside the grammar are ignored; non-string values are an error.
// Bindings come out ordered by edge index; within an index, direct before
// reverse before v-structure relations, then hops, then objects. Equal
// records decode to equal groundings, and a record carrying several relation
// keys for one edge always yields the same winner downstream.
func DecodeGrounding(record map[string]any) (Grounding, error) {
	out := make(Grounding, 0, len(record))
	for key, raw := range record {
		kind, index, ok := parseKey(key)
		if !ok {
			continue
		}
		id, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("kb: grounding key %q: non-string value %T", key, raw)
		}
		out = append(out, Binding{Kind: kind, Index: index, ID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return bindRank(out[i].Kind) < bindRank(out[j].Kind)
	})
	return out, nil
}

func bindRank(k BindingKind) int {
	switch k {
	case BindDirect:
		return 0
	case BindReverse:
		return 1
	case BindVStructure:
		return 2
	case BindHop:
		return 3
	default:
		return 4
	}
}

func parseKey(key string) (BindingKind, int, bool) {
	switch {
	case strings.HasPrefix(key, "hop") && strings.HasSuffix(key, "v"):
		i, err := strconv.Atoi(key[3 : len(key)-1])
		if err != nil || i < 0 {
			return 0, 0, false
		}
		return BindHop, i, true
	case strings.HasPrefix(key, "e2"):
		i, err := strconv.Atoi(key[2:])
		if err != nil || i < 0 {
			return 0, 0, false
		}
		return BindObject, i, true
	case strings.HasPrefix(key, "r") && len(key) >= 3:
		i, err := strconv.Atoi(key[1 : len(key)-1])
		if err != nil || i < 0 {
			return 0, 0, false
		}
		switch key[len(key)-1] {
		case 'd':
			return BindDirect, i, true
		case 'r':
			return BindReverse, i, true
		case 'v':
			return BindVStructure, i, true
		}
	}
	return 0, 0, false
}

// EncodeKey is the inverse of the decoder's key grammar, used by backends
// when naming result columns.
func EncodeKey(kind BindingKind, index int) string {
	switch kind {
	case BindDirect:
		return fmt.Sprintf("r%dd", index)
	case BindReverse:
		return fmt.Sprintf("r%dr", index)
	case BindVStructure:
		return fmt.Sprintf("r%dv", index)
	case BindHop:
		return fmt.Sprintf("hop%dv", index)
	default:
		return fmt.Sprintf("e2%d", index)
	}
}
