package diagram

import (
	"fmt"

	"github.com/diagramworks/diagram/protocol"
)

// server-side helpers over the model tree. The tree is owned by exactly one
// session and only touched under that session's lock, so none of these are
// concurrency safe on their own.

// indexById walks the tree and returns an id -> element mapping. A duplicate
// id is a structural invariant violation coming from a collaborator and is
// rejected at this boundary rather than allowed to corrupt state.
func indexById(root *protocol.ModelElement) (map[string]*protocol.ModelElement, error) {
	index := map[string]*protocol.ModelElement{}
	var walk func(element *protocol.ModelElement) error
	walk = func(element *protocol.ModelElement) error {
		if _, ok := index[element.Id]; ok {
			return fmt.Errorf("%w: duplicate element id %s", ErrInvalidElementReference, element.Id)
		}
		index[element.Id] = element
		for _, child := range element.Children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return index, nil
}

func findParent(root *protocol.ModelElement, elementId string) *protocol.ModelElement {
	for _, child := range root.Children {
		if child.Id == elementId {
			return root
		}
		if parent := findParent(child, elementId); parent != nil {
			return parent
		}
	}
	return nil
}

// subtreeIds collects the element id and every descendant id.
func subtreeIds(element *protocol.ModelElement, ids map[string]bool) {
	ids[element.Id] = true
	for _, child := range element.Children {
		subtreeIds(child, ids)
	}
}

// isWithinSubtree reports whether candidateId is elementId itself or one of
// its descendants. Used to reject reparenting an element into its own subtree.
func isWithinSubtree(element *protocol.ModelElement, candidateId string) bool {
	if element.Id == candidateId {
		return true
	}
	for _, child := range element.Children {
		if isWithinSubtree(child, candidateId) {
			return true
		}
	}
	return false
}

// removeElements drops every element whose id is in the removed set, along
// with its subtree. The root is never removed.
func removeElements(root *protocol.ModelElement, removed map[string]bool) {
	children := root.Children[:0]
	for _, child := range root.Children {
		if removed[child.Id] {
			continue
		}
		removeElements(child, removed)
		children = append(children, child)
	}
	root.Children = children
}

// collectEdges returns every edge element in the tree.
func collectEdges(root *protocol.ModelElement, edges *[]*protocol.ModelElement) {
	if root.IsEdge() {
		*edges = append(*edges, root)
	}
	for _, child := range root.Children {
		collectEdges(child, edges)
	}
}
