package graph

import "github.com/maskdotdev/sombra-sub004/internal/propval"

// PropOpKind discriminates the two property patch operations of spec
// §4.8's update_node/update_edge.
type PropOpKind uint8

const (
	PropSet PropOpKind = iota
	PropDelete
)

// PropOp is one step of an ordered property patch.
type PropOp struct {
	Kind  PropOpKind
	ID    PropID
	Value propval.Value // meaningful only when Kind == PropSet
}

// LabelOpKind discriminates the two label patch operations.
type LabelOpKind uint8

const (
	LabelAdd LabelOpKind = iota
	LabelRemove
)

// LabelOp is one step of an ordered label patch.
type LabelOp struct {
	Kind LabelOpKind
	ID   LabelID
}

// Patch bundles a node or edge update. Labels are applied before
// properties (SPEC_FULL §3.4: "label validity gates property validity
// when a property index is scoped to a label").
type Patch struct {
	Labels []LabelOp
	Props  []PropOp
}

func findProp(props []Prop, id PropID) (int, bool) {
	lo, hi := 0, len(props)
	for lo < hi {
		mid := (lo + hi) / 2
		if props[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(props) && props[lo].ID == id
}

func findLabel(labels []LabelID, id LabelID) (int, bool) {
	for i, l := range labels {
		if l == id {
			return i, true
		}
	}
	return -1, false
}
