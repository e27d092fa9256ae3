package profile

import (
	"encoding/json"
	"strings"

	"github.com/cesmii/profiledesigner/graph"
	"github.com/cesmii/profiledesigner/nodeset"
)

// Warning messages.
const (
	msgNoParent = "data variable has no parent"
	msgUnmapped = "unmapped data variable"
)

// detectOrphans records a warning for every data variable of m that no
// projected item accounts for. Variables whose parent lives in another
// namespace are instantiated from foreign types and are skipped.
func (p *Projector) detectOrphans(tx *Transaction, m *graph.NodeSetModel) {
	for _, v := range m.NodesOfKind(graph.KindDataVariable) {
		if v.Parent == "" {
			tx.warn(Warning{NodeID: v.NodeID, Name: v.Name(), Message: msgNoParent})
			continue
		}
		parent, ok := tx.Registry.Lookup(v.Parent)
		if !ok {
			tx.warn(Warning{NodeID: v.NodeID, Name: v.Name(), Parent: v.Parent, Message: msgNoParent})
			continue
		}
		if parent.Namespace != v.Namespace {
			continue
		}
		if p.represented(tx, v, parent) {
			continue
		}
		tx.warn(Warning{NodeID: v.NodeID, Name: v.Name(), Parent: parent.NodeID, Message: msgUnmapped})
	}
}

// represented reports whether v appears as an attribute of its parent's
// item, or, for a parent variable, in that variable's map of type-defined
// children.
func (p *Projector) represented(tx *Transaction, v, parent *graph.Node) bool {
	if !parent.Kind.IsVariable() {
		item, ok := tx.Item(KeyOf(parent))
		return ok && findCorrelated(item, v.NodeID) != nil
	}

	owner, err := p.owner(tx, parent)
	if err != nil {
		return false
	}
	item, ok := tx.Item(KeyOf(owner))
	if !ok {
		return false
	}
	attr := findCorrelated(item, parent.NodeID)
	if attr == nil || attr.DataVariableNodeIDs == "" {
		return false
	}
	var children map[string]string
	if err := json.Unmarshal([]byte(attr.DataVariableNodeIDs), &children); err != nil {
		p.logger.Warn("ignoring malformed child variable map", "node", parent.NodeID, "error", err)
		return false
	}
	for _, id := range children {
		if id == v.NodeID {
			return true
		}
	}
	return false
}

func findCorrelated(item *ProfileItem, nodeID string) *Attribute {
	for _, a := range item.Attributes {
		if correlates(nodeID, a) {
			return a
		}
	}
	return nil
}

// correlates matches an expanded node id against an attribute's source:
// the "nsu=" part must end with the attribute namespace and the local parts
// must be equal.
func correlates(nodeID string, a *Attribute) bool {
	if a.NodeID == "" {
		return false
	}
	parts := strings.SplitN(nodeID, ";", 2)
	if len(parts) != 2 {
		return false
	}
	return strings.HasSuffix(parts[0], a.Namespace) && parts[1] == nodeset.LocalPart(a.NodeID)
}
