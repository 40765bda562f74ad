package diagram

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/diagramworks/diagram/protocol"
)

func createFixed(t *testing.T, engine *Engine, clientId string, session *Session, elementTypeId string, x float64, y float64) *protocol.ModelElement {
	childCount := len(session.root.Children)
	out := dispatch(engine, clientId, &protocol.CreateNode{
		ElementTypeId: elementTypeId,
		Location:      &protocol.Point{X: x, Y: y},
	})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, session.state, SessionStateReady)
	return session.root.Children[childCount]
}

func connectElements(t *testing.T, engine *Engine, clientId string, session *Session, sourceId string, targetId string) *protocol.ModelElement {
	childCount := len(session.root.Children)
	out := dispatch(engine, clientId, &protocol.CreateConnection{
		ElementTypeId: "flow-edge",
		SourceId:      sourceId,
		TargetId:      targetId,
	})
	assert.Equal(t, firstStatus(out), nil)
	return session.root.Children[childCount]
}

func TestCreateNodeBroadcast(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	out := dispatch(engine, clientId, &protocol.CreateNode{
		ElementTypeId: "task",
		Location:      &protocol.Point{X: 10, Y: 10},
	})

	// the task type has a fixed size, no bounds round-trip
	updates := actionsOfKind(out, protocol.KindUpdateModel)
	assert.Equal(t, len(updates), 1)
	update := updates[0].(*protocol.UpdateModel)
	assert.Equal(t, update.NewRoot.Revision, int64(1))

	assert.Equal(t, session.state, SessionStateReady)
	assert.Equal(t, session.modelRevision, int64(1))
	assert.Equal(t, len(session.root.Children), 1)

	task := session.root.Children[0]
	assert.Equal(t, task.Type, "task")
	assert.Equal(t, *task.Position, protocol.Point{X: 10, Y: 10})
	assert.Equal(t, *task.Size, protocol.Dimension{Width: 120, Height: 60})

	// structural operations become active with the first deletable element
	setOperations := actionsOfKind(out, protocol.KindSetOperations)
	assert.Equal(t, len(setOperations), 1)
}

func TestCreateNodeUnknownType(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	out := dispatch(engine, clientId, &protocol.CreateNode{ElementTypeId: "widget"})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, session.modelRevision, int64(0))
	assert.Equal(t, len(session.root.Children), 0)
}

func TestCreateNodeBeforeReady(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()

	dispatch(engine, clientId, &protocol.RequestModel{})
	session := engine.sessions[clientId]
	assert.Equal(t, session.state, SessionStateAwaitingCapabilities)

	out := dispatch(engine, clientId, &protocol.CreateNode{ElementTypeId: "task"})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, len(session.root.Children), 0)
}

func TestCreateNodeContainment(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	container := createFixed(t, engine, clientId, session, "container", 0, 0)

	// container accepts tasks
	out := dispatch(engine, clientId, &protocol.CreateNode{
		ElementTypeId: "task",
		ContainerId:   container.Id,
		Location:      &protocol.Point{X: 10, Y: 10},
	})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, len(container.Children), 1)
	assert.Equal(t, container.Children[0].Type, "task")

	// but not starts
	out = dispatch(engine, clientId, &protocol.CreateNode{
		ElementTypeId: "start",
		ContainerId:   container.Id,
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, len(container.Children), 1)
}

func TestDeleteNotDeletable(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	start := createFixed(t, engine, clientId, session, "start", 0, 0)
	assert.Equal(t, session.modelRevision, int64(1))

	out := dispatch(engine, clientId, &protocol.DeleteElement{ElementIds: []string{start.Id}})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Severity, protocol.SeverityError)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)

	// rejected edits leave the model and revision untouched
	assert.Equal(t, session.modelRevision, int64(1))
	assert.Equal(t, len(session.root.Children), 1)
}

func TestDeleteRoot(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	out := dispatch(engine, clientId, &protocol.DeleteElement{ElementIds: []string{session.root.Id}})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
}

func TestDeleteCascadesToEdges(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	taskA := createFixed(t, engine, clientId, session, "task", 0, 0)
	taskB := createFixed(t, engine, clientId, session, "task", 200, 0)
	connectElements(t, engine, clientId, session, taskA.Id, taskB.Id)
	assert.Equal(t, session.modelRevision, int64(3))

	dispatch(engine, clientId, &protocol.SelectElements{SelectedElementIds: []string{taskA.Id}})

	out := dispatch(engine, clientId, &protocol.DeleteElement{ElementIds: []string{taskA.Id}})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, session.modelRevision, int64(4))

	// the edge referencing the deleted endpoint goes with it
	assert.Equal(t, len(session.root.Children), 1)
	assert.Equal(t, session.root.Children[0].Id, taskB.Id)
	assert.Equal(t, session.selection[taskA.Id], false)
}

func TestDeleteUnknownElement(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	out := dispatch(engine, clientId, &protocol.DeleteElement{ElementIds: []string{"missing"}})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeInvalidElementReference)
	assert.Equal(t, session.modelRevision, int64(0))
}

func TestCreateConnectionEndpointGating(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	start := createFixed(t, engine, clientId, session, "start", 0, 0)
	task := createFixed(t, engine, clientId, session, "task", 200, 0)

	// start is an allowed source but not an allowed target
	out := dispatch(engine, clientId, &protocol.CreateConnection{
		ElementTypeId: "flow-edge",
		SourceId:      task.Id,
		TargetId:      start.Id,
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, len(session.root.Children), 2)

	edge := connectElements(t, engine, clientId, session, start.Id, task.Id)
	assert.Equal(t, edge.SourceId, start.Id)
	assert.Equal(t, edge.TargetId, task.Id)
	assert.Equal(t, edge.IsEdge(), true)
}

func TestChangeBoundsGating(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	start := createFixed(t, engine, clientId, session, "start", 0, 0)
	task := createFixed(t, engine, clientId, session, "task", 100, 100)
	assert.Equal(t, session.modelRevision, int64(2))

	// start is not repositionable. Validation runs before any mutation,
	// so the task in the same batch stays put too.
	out := dispatch(engine, clientId, &protocol.ChangeBounds{
		NewBounds: []protocol.ElementAndBounds{
			{
				ElementId: task.Id,
				NewBounds: protocol.Bounds{X: 300, Y: 300, Width: 120, Height: 60},
			},
			{
				ElementId: start.Id,
				NewBounds: protocol.Bounds{X: 50, Y: 50, Width: 30, Height: 30},
			},
		},
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, *task.Position, protocol.Point{X: 100, Y: 100})
	assert.Equal(t, session.modelRevision, int64(2))

	out = dispatch(engine, clientId, &protocol.ChangeBounds{
		NewBounds: []protocol.ElementAndBounds{
			{
				ElementId: task.Id,
				NewBounds: protocol.Bounds{X: 300, Y: 300, Width: 160, Height: 80},
			},
		},
	})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, *task.Position, protocol.Point{X: 300, Y: 300})
	assert.Equal(t, *task.Size, protocol.Dimension{Width: 160, Height: 80})
	assert.Equal(t, session.modelRevision, int64(3))
}

func TestChangeContainer(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	container := createFixed(t, engine, clientId, session, "container", 0, 0)
	task := createFixed(t, engine, clientId, session, "task", 400, 0)

	out := dispatch(engine, clientId, &protocol.ChangeContainer{
		ElementId:         task.Id,
		TargetContainerId: container.Id,
		Location:          &protocol.Point{X: 10, Y: 10},
	})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, len(session.root.Children), 1)
	assert.Equal(t, len(container.Children), 1)
	assert.Equal(t, container.Children[0].Id, task.Id)
	assert.Equal(t, *task.Position, protocol.Point{X: 10, Y: 10})

	// a container cannot move into its own subtree
	out = dispatch(engine, clientId, &protocol.ChangeContainer{
		ElementId:         container.Id,
		TargetContainerId: container.Id,
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeInvalidElementReference)

	// start is not containable in a container
	start := createFixed(t, engine, clientId, session, "start", 0, 0)
	out = dispatch(engine, clientId, &protocol.ChangeContainer{
		ElementId:         start.Id,
		TargetContainerId: container.Id,
	})
	status = firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
}

func TestChangeContainerWithoutLocation(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	container := createFixed(t, engine, clientId, session, "container", 0, 0)
	task := createFixed(t, engine, clientId, session, "task", 400, 0)

	// without a location the client must measure the new placement
	out := dispatch(engine, clientId, &protocol.ChangeContainer{
		ElementId:         task.Id,
		TargetContainerId: container.Id,
	})
	requests := actionsOfKind(out, protocol.KindRequestAction)
	assert.Equal(t, len(requests), 1)
	assert.Equal(t, session.state, SessionStateAwaitingBounds)

	dispatch(engine, clientId, &protocol.ComputedBounds{
		Bounds: []protocol.ElementAndBounds{
			{
				ElementId: task.Id,
				NewBounds: protocol.Bounds{X: 20, Y: 20, Width: 120, Height: 60},
			},
		},
		Revision: session.modelRevision,
	})
	assert.Equal(t, session.state, SessionStateReady)
	assert.Equal(t, *task.Position, protocol.Point{X: 20, Y: 20})
}

func TestReconnectConnection(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	start := createFixed(t, engine, clientId, session, "start", 0, 0)
	taskA := createFixed(t, engine, clientId, session, "task", 200, 0)
	taskB := createFixed(t, engine, clientId, session, "task", 400, 0)
	edge := connectElements(t, engine, clientId, session, start.Id, taskA.Id)

	out := dispatch(engine, clientId, &protocol.RerouteConnection{
		ConnectionId:  edge.Id,
		RoutingPoints: []protocol.Point{{X: 100, Y: 50}},
	})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, len(edge.RoutingPoints), 1)

	// reconnecting drops the old routing
	out = dispatch(engine, clientId, &protocol.ReconnectConnection{
		ConnectionId: edge.Id,
		SourceId:     start.Id,
		TargetId:     taskB.Id,
	})
	assert.Equal(t, firstStatus(out), nil)
	assert.Equal(t, edge.TargetId, taskB.Id)
	assert.Equal(t, len(edge.RoutingPoints), 0)

	// endpoint gating applies on reconnect too
	out = dispatch(engine, clientId, &protocol.ReconnectConnection{
		ConnectionId: edge.Id,
		SourceId:     taskA.Id,
		TargetId:     start.Id,
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, edge.SourceId, start.Id)
}

func TestRerouteUnknownConnection(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	task := createFixed(t, engine, clientId, session, "task", 0, 0)

	// a node is not a connection
	out := dispatch(engine, clientId, &protocol.RerouteConnection{
		ConnectionId:  task.Id,
		RoutingPoints: []protocol.Point{{X: 1, Y: 1}},
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeInvalidElementReference)
}
