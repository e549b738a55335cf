package graph

import (
	"fmt"

	"github.com/maskdotdev/sombra-sub004/internal/errs"
)

func notFoundNode(id NodeID) error {
	return errs.NotFound(fmt.Sprintf("graph: node %d not found", id))
}

func notFoundEdge(id EdgeID) error {
	return errs.NotFound(fmt.Sprintf("graph: edge %d not found", id))
}

func invalidHasIncidentEdges(id NodeID) error {
	return errs.Invalid(fmt.Sprintf("graph: node %d has incident edges (restrict)", id))
}

func invalidEndpointMissing(id NodeID) error {
	return errs.Invalid(fmt.Sprintf("graph: edge endpoint %d does not exist", id))
}

func errRangeNeedsOrderedIndex(label LabelID, prop PropID) error {
	return errs.Invalid(fmt.Sprintf("graph: property_scan_range on (label %d, prop %d) requires an ordered index", label, prop))
}
