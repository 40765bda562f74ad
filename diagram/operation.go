package diagram

import (
	"fmt"
	"strings"

	"github.com/golang/glog"

	"golang.org/x/exp/slices"

	"github.com/diagramworks/diagram/protocol"
)

// The edit pipeline. Each operation resolves the relevant type hints first
// and validates fully before mutating, so the model is unchanged on any
// failure. Mutations then increment the revision; an element whose layout
// the server cannot determine enters the bounds handshake before the update
// broadcast, everything else broadcasts directly.

func newElementId(elementTypeId string) string {
	return fmt.Sprintf("%s_%s", elementTypeId, strings.ReplaceAll(NewId().String(), "-", ""))
}

func (self *Engine) handleCreateNode(session *Session, action protocol.Action) []protocol.Action {
	createNode := action.(*protocol.CreateNode)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	elementType := self.config.ElementType(createNode.ElementTypeId)
	if elementType == nil || !elementType.IsNode() {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("Cannot create node of type %s.", createNode.ElementTypeId))
	}
	if _, ok := session.nodeHints[createNode.ElementTypeId]; !ok {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("No type hint for %s.", createNode.ElementTypeId))
	}
	if !self.layerActive(session, elementType.LayerId) {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("Layer %s is not active.", elementType.LayerId))
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	container := session.root
	if createNode.ContainerId != "" && createNode.ContainerId != session.root.Id {
		var ok bool
		container, ok = index[createNode.ContainerId]
		if !ok {
			return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown container: %s.", createNode.ContainerId))
		}
		containerHint, ok := session.nodeHints[container.Type]
		if !ok || !slices.Contains(containerHint.ContainableElementTypeIds, createNode.ElementTypeId) {
			return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s cannot contain %s.", container.Type, createNode.ElementTypeId))
		}
	}

	element := &protocol.ModelElement{
		Type:  createNode.ElementTypeId,
		Id:    newElementId(createNode.ElementTypeId),
		Layer: elementType.LayerId,
	}
	if createNode.Location != nil {
		location := *createNode.Location
		element.Position = &location
	}
	if elementType.Size != nil {
		size := *elementType.Size
		element.Size = &size
	}
	container.Children = append(container.Children, element)

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	glog.V(1).Infof("[%s]create %s rev=%d\n", session.clientId, element.Id, session.modelRevision)

	if element.Size == nil {
		// the client must measure the new element before the model is
		// finalized and broadcast
		return self.beginBoundsHandshake(session)
	}
	out := []protocol.Action{self.modelBroadcast(session)}
	out = append(out, self.operationsChange(session)...)
	return out
}

func (self *Engine) handleCreateConnection(session *Session, action protocol.Action) []protocol.Action {
	createConnection := action.(*protocol.CreateConnection)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	elementType := self.config.ElementType(createConnection.ElementTypeId)
	if elementType == nil || !elementType.IsEdge() {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("Cannot create connection of type %s.", createConnection.ElementTypeId))
	}
	hint, ok := session.edgeHints[createConnection.ElementTypeId]
	if !ok {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("No type hint for %s.", createConnection.ElementTypeId))
	}
	if !self.layerActive(session, elementType.LayerId) {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("Layer %s is not active.", elementType.LayerId))
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	source, ok := index[createConnection.SourceId]
	if !ok {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown source: %s.", createConnection.SourceId))
	}
	target, ok := index[createConnection.TargetId]
	if !ok {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown target: %s.", createConnection.TargetId))
	}
	if !endpointAllowed(hint.SourceElementTypeIds, source.Type) {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not an allowed source for %s.", source.Type, createConnection.ElementTypeId))
	}
	if !endpointAllowed(hint.TargetElementTypeIds, target.Type) {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not an allowed target for %s.", target.Type, createConnection.ElementTypeId))
	}

	edge := &protocol.ModelElement{
		Type:     createConnection.ElementTypeId,
		Id:       newElementId(createConnection.ElementTypeId),
		SourceId: createConnection.SourceId,
		TargetId: createConnection.TargetId,
		Layer:    elementType.LayerId,
	}
	session.root.Children = append(session.root.Children, edge)

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	glog.V(1).Infof("[%s]connect %s->%s rev=%d\n", session.clientId, createConnection.SourceId, createConnection.TargetId, session.modelRevision)

	out := []protocol.Action{self.modelBroadcast(session)}
	out = append(out, self.operationsChange(session)...)
	return out
}

func (self *Engine) handleDeleteElement(session *Session, action protocol.Action) []protocol.Action {
	deleteElement := action.(*protocol.DeleteElement)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	removed := map[string]bool{}
	for _, elementId := range deleteElement.ElementIds {
		element, ok := index[elementId]
		if !ok {
			return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown element: %s.", elementId))
		}
		if element == session.root {
			return errorStatus(ErrOperationNotPermitted, "Cannot delete the model root.")
		}
		if !self.deletable(session, element) {
			return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not deletable.", elementId))
		}
		subtreeIds(element, removed)
	}

	// deletion cascades to connections referencing deleted endpoints
	edges := []*protocol.ModelElement{}
	collectEdges(session.root, &edges)
	for _, edge := range edges {
		if removed[edge.SourceId] || removed[edge.TargetId] {
			subtreeIds(edge, removed)
		}
	}

	removeElements(session.root, removed)
	for elementId := range removed {
		delete(session.selection, elementId)
	}

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	glog.V(1).Infof("[%s]delete %d elements rev=%d\n", session.clientId, len(removed), session.modelRevision)

	out := []protocol.Action{self.modelBroadcast(session)}
	out = append(out, self.operationsChange(session)...)
	return out
}

func (self *Engine) handleChangeBounds(session *Session, action protocol.Action) []protocol.Action {
	changeBounds := action.(*protocol.ChangeBounds)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	// validate everything before mutating anything
	for _, elementBounds := range changeBounds.NewBounds {
		element, ok := index[elementBounds.ElementId]
		if !ok {
			return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown element: %s.", elementBounds.ElementId))
		}
		hint, ok := session.nodeHints[element.Type]
		if !ok {
			return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("No type hint for %s.", element.Type))
		}
		if positionChanged(element, elementBounds.NewBounds) && !hint.Repositionable {
			return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not repositionable.", elementBounds.ElementId))
		}
		if sizeChanged(element, elementBounds.NewBounds) && !hint.Resizable {
			return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not resizable.", elementBounds.ElementId))
		}
	}
	for _, elementBounds := range changeBounds.NewBounds {
		element := index[elementBounds.ElementId]
		element.Position = &protocol.Point{
			X: elementBounds.NewBounds.X,
			Y: elementBounds.NewBounds.Y,
		}
		element.Size = &protocol.Dimension{
			Width:  elementBounds.NewBounds.Width,
			Height: elementBounds.NewBounds.Height,
		}
	}

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	return []protocol.Action{self.modelBroadcast(session)}
}

func (self *Engine) handleChangeContainer(session *Session, action protocol.Action) []protocol.Action {
	changeContainer := action.(*protocol.ChangeContainer)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	element, ok := index[changeContainer.ElementId]
	if !ok {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown element: %s.", changeContainer.ElementId))
	}
	if element == session.root || element.IsEdge() {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s cannot change container.", changeContainer.ElementId))
	}
	container := session.root
	if changeContainer.TargetContainerId != "" && changeContainer.TargetContainerId != session.root.Id {
		container, ok = index[changeContainer.TargetContainerId]
		if !ok {
			return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown container: %s.", changeContainer.TargetContainerId))
		}
		containerHint, ok := session.nodeHints[container.Type]
		if !ok || !slices.Contains(containerHint.ContainableElementTypeIds, element.Type) {
			return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s cannot contain %s.", container.Type, element.Type))
		}
	}
	if isWithinSubtree(element, container.Id) {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Cannot move %s into its own subtree.", changeContainer.ElementId))
	}

	parent := findParent(session.root, element.Id)
	children := parent.Children[:0]
	for _, child := range parent.Children {
		if child != element {
			children = append(children, child)
		}
	}
	parent.Children = children
	container.Children = append(container.Children, element)
	if changeContainer.Location != nil {
		location := *changeContainer.Location
		element.Position = &location
	} else {
		// position in the new container is unknown until the client
		// measures it
		element.Position = nil
	}

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	glog.V(1).Infof("[%s]reparent %s -> %s rev=%d\n", session.clientId, element.Id, container.Id, session.modelRevision)

	if element.Position == nil {
		return self.beginBoundsHandshake(session)
	}
	out := []protocol.Action{self.modelBroadcast(session)}
	out = append(out, self.operationsChange(session)...)
	return out
}

func (self *Engine) handleReconnectConnection(session *Session, action protocol.Action) []protocol.Action {
	reconnect := action.(*protocol.ReconnectConnection)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	edge, ok := index[reconnect.ConnectionId]
	if !ok || !edge.IsEdge() {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown connection: %s.", reconnect.ConnectionId))
	}
	hint, ok := session.edgeHints[edge.Type]
	if !ok {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("No type hint for %s.", edge.Type))
	}
	source, ok := index[reconnect.SourceId]
	if !ok {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown source: %s.", reconnect.SourceId))
	}
	target, ok := index[reconnect.TargetId]
	if !ok {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown target: %s.", reconnect.TargetId))
	}
	if !endpointAllowed(hint.SourceElementTypeIds, source.Type) {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not an allowed source for %s.", source.Type, edge.Type))
	}
	if !endpointAllowed(hint.TargetElementTypeIds, target.Type) {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not an allowed target for %s.", target.Type, edge.Type))
	}

	edge.SourceId = reconnect.SourceId
	edge.TargetId = reconnect.TargetId
	// old routing no longer applies
	edge.RoutingPoints = nil

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	return []protocol.Action{self.modelBroadcast(session)}
}

func (self *Engine) handleRerouteConnection(session *Session, action protocol.Action) []protocol.Action {
	reroute := action.(*protocol.RerouteConnection)
	if !session.acceptsEdits() {
		return notReadyStatus(session)
	}

	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	edge, ok := index[reroute.ConnectionId]
	if !ok || !edge.IsEdge() {
		return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown connection: %s.", reroute.ConnectionId))
	}
	hint, ok := session.edgeHints[edge.Type]
	if !ok || !hint.Routable {
		return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("%s is not routable.", reroute.ConnectionId))
	}

	edge.RoutingPoints = slices.Clone(reroute.RoutingPoints)

	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	return []protocol.Action{self.modelBroadcast(session)}
}

func (self *Engine) deletable(session *Session, element *protocol.ModelElement) bool {
	if hint, ok := session.nodeHints[element.Type]; ok {
		return hint.Deletable
	}
	if hint, ok := session.edgeHints[element.Type]; ok {
		return hint.Deletable
	}
	return false
}

// empty endpoint lists allow any type
func endpointAllowed(allowedTypeIds []string, typeId string) bool {
	return len(allowedTypeIds) == 0 || slices.Contains(allowedTypeIds, typeId)
}

func positionChanged(element *protocol.ModelElement, newBounds protocol.Bounds) bool {
	if element.Position == nil {
		return true
	}
	return element.Position.X != newBounds.X || element.Position.Y != newBounds.Y
}

func sizeChanged(element *protocol.ModelElement, newBounds protocol.Bounds) bool {
	if element.Size == nil {
		return true
	}
	return element.Size.Width != newBounds.Width || element.Size.Height != newBounds.Height
}

func notReadyStatus(session *Session) []protocol.Action {
	return errorStatus(ErrOperationNotPermitted, fmt.Sprintf("Session is %s, edits need ready.", session.state))
}
