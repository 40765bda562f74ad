package diagram

import (
	"fmt"
	"sort"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"

	"github.com/diagramworks/diagram/protocol"
)

// Tool and operation availability is a function of the active layers, so a
// layer toggle recomputes the visible model subset, the tool list, and the
// operation list, in that order. A recompute only rebroadcasts a list that
// changed from its last broadcast value. A toggle that changes the visible
// model runs the bounds handshake before the updateModel broadcast so the
// client never renders tool changes against a stale layout.

func (self *Engine) handleToggleLayer(session *Session, action protocol.Action) []protocol.Action {
	toggle := action.(*protocol.ToggleLayer)

	if !slices.ContainsFunc(self.config.Layers, func(layer LayerConfig) bool {
		return layer.Id == toggle.LayerId
	}) {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown layer: %s.", toggle.LayerId))
	}
	if session.activeLayers[toggle.LayerId] == toggle.Active {
		// idempotent
		return nil
	}
	session.activeLayers[toggle.LayerId] = toggle.Active
	glog.V(1).Infof("[%s]layer %s active=%t\n", session.clientId, toggle.LayerId, toggle.Active)

	out := []protocol.Action{&protocol.SetLayers{Layers: self.layerList(session)}}
	if session.modelEmitted && session.root != nil && self.modelOnLayer(session.root, toggle.LayerId) {
		out = append(out, self.beginBoundsHandshake(session)...)
	}
	out = append(out, self.toolsChange(session)...)
	out = append(out, self.operationsChange(session)...)
	return out
}

func (self *Engine) layerList(session *Session) []protocol.Layer {
	layers := []protocol.Layer{}
	for _, layer := range self.config.Layers {
		layers = append(layers, protocol.Layer{
			Id:     layer.Id,
			Name:   layer.Name,
			Active: session.activeLayers[layer.Id],
		})
	}
	return layers
}

// layerOf resolves the layer an element lives on: the element's own tag
// wins, otherwise its type's configured layer.
func (self *Engine) layerOf(element *protocol.ModelElement) string {
	if element.Layer != "" {
		return element.Layer
	}
	if elementType := self.config.ElementType(element.Type); elementType != nil {
		return elementType.LayerId
	}
	return ""
}

func (self *Engine) layerActive(session *Session, layerId string) bool {
	if layerId == "" {
		// elements with no layer are always visible
		return true
	}
	return session.activeLayers[layerId]
}

// modelOnLayer reports whether any element of the tree lives on the layer.
func (self *Engine) modelOnLayer(root *protocol.ModelElement, layerId string) bool {
	if self.layerOf(root) == layerId {
		return true
	}
	for _, child := range root.Children {
		if self.modelOnLayer(child, layerId) {
			return true
		}
	}
	return false
}

// visibleRoot clones the session's tree and filters out elements on inactive
// layers, plus edges whose endpoints were filtered.
func (self *Engine) visibleRoot(session *Session) *protocol.ModelElement {
	visible := session.root.Clone()

	removed := map[string]bool{}
	var filter func(element *protocol.ModelElement)
	filter = func(element *protocol.ModelElement) {
		children := element.Children[:0]
		for _, child := range element.Children {
			if !self.layerActive(session, self.layerOf(child)) {
				subtreeIds(child, removed)
				continue
			}
			filter(child)
			children = append(children, child)
		}
		element.Children = children
	}
	filter(visible)

	if 0 < len(removed) {
		danglingEdges := map[string]bool{}
		edges := []*protocol.ModelElement{}
		collectEdges(visible, &edges)
		for _, edge := range edges {
			if removed[edge.SourceId] || removed[edge.TargetId] {
				danglingEdges[edge.Id] = true
			}
		}
		if 0 < len(danglingEdges) {
			removeElements(visible, danglingEdges)
		}
	}
	return visible
}

func computeTools(config *DiagramConfig, activeLayers map[string]bool) []protocol.Tool {
	tools := []protocol.Tool{}
	for _, tool := range config.Tools {
		if tool.LayerId != "" && !activeLayers[tool.LayerId] {
			continue
		}
		tools = append(tools, protocol.Tool{
			Id:   tool.Id,
			Name: tool.Name,
		})
	}
	return tools
}

// computeOperations derives the offered operation list. Create operations
// come from element types on active layers; the generic structural
// operations are active only while the model contains elements they can
// apply to, so structural edits retrigger this recompute.
func computeOperations(config *DiagramConfig, session *Session) []protocol.Operation {
	operations := []protocol.Operation{}
	for i := range config.ElementTypes {
		elementType := &config.ElementTypes[i]
		if elementType.LayerId != "" && !session.activeLayers[elementType.LayerId] {
			continue
		}
		if elementType.IsNode() {
			operations = append(operations, protocol.Operation{
				Id:            fmt.Sprintf("createNode.%s", elementType.ElementTypeId),
				ElementTypeId: elementType.ElementTypeId,
				Label:         fmt.Sprintf("Create %s", elementType.Label),
				OperationKind: protocol.OperationCreateNode,
				Active:        true,
			})
		} else {
			operations = append(operations, protocol.Operation{
				Id:            fmt.Sprintf("createConnection.%s", elementType.ElementTypeId),
				ElementTypeId: elementType.ElementTypeId,
				Label:         fmt.Sprintf("Connect %s", elementType.Label),
				OperationKind: protocol.OperationCreateConnection,
				Active:        true,
			})
		}
	}

	deletable := false
	repositionable := false
	containers := false
	if session.root != nil {
		var walk func(element *protocol.ModelElement)
		walk = func(element *protocol.ModelElement) {
			if element != session.root {
				if hint, ok := session.nodeHints[element.Type]; ok {
					deletable = deletable || hint.Deletable
					repositionable = repositionable || hint.Repositionable
					containers = containers || 0 < len(hint.ContainableElementTypeIds)
				}
				if hint, ok := session.edgeHints[element.Type]; ok {
					deletable = deletable || hint.Deletable
				}
			}
			for _, child := range element.Children {
				walk(child)
			}
		}
		walk(session.root)
	}
	operations = append(operations,
		protocol.Operation{
			Id:            "delete",
			Label:         "Delete",
			OperationKind: protocol.OperationDelete,
			Active:        deletable,
		},
		protocol.Operation{
			Id:            "changeBounds",
			Label:         "Move/resize",
			OperationKind: protocol.OperationChangeBounds,
			Active:        repositionable,
		},
		protocol.Operation{
			Id:            "changeContainer",
			Label:         "Change container",
			OperationKind: protocol.OperationChangeContainer,
			Active:        containers,
		},
	)
	sort.SliceStable(operations, func(i int, j int) bool {
		return operations[i].Id < operations[j].Id
	})
	return operations
}

func (self *Engine) toolsChange(session *Session) []protocol.Action {
	if !session.toolsSupplied {
		return nil
	}
	tools := computeTools(self.config, session.activeLayers)
	if slices.Equal(session.lastTools, tools) {
		return nil
	}
	session.lastTools = tools
	return []protocol.Action{&protocol.SetTools{Tools: tools}}
}

func (self *Engine) operationsChange(session *Session) []protocol.Action {
	if !session.toolsSupplied {
		return nil
	}
	operations := computeOperations(self.config, session)
	if slices.Equal(session.lastOperations, operations) {
		return nil
	}
	session.lastOperations = operations
	return []protocol.Action{&protocol.SetOperations{Operations: operations}}
}
