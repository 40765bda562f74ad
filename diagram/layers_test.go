package diagram

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"golang.org/x/exp/slices"

	"github.com/diagramworks/diagram/protocol"
)

func toolIds(tools []protocol.Tool) []string {
	ids := []string{}
	for _, tool := range tools {
		ids = append(ids, tool.Id)
	}
	return ids
}

func operationIds(operations []protocol.Operation) []string {
	ids := []string{}
	for _, operation := range operations {
		ids = append(ids, operation.Id)
	}
	return ids
}

func TestToggleLayerRoundTrip(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	toolsBefore := slices.Clone(session.lastTools)
	operationsBefore := slices.Clone(session.lastOperations)
	assert.Equal(t, slices.Contains(toolIds(toolsBefore), "note-palette"), true)
	assert.Equal(t, slices.Contains(operationIds(operationsBefore), "createNode.note"), true)

	out := dispatch(engine, clientId, &protocol.ToggleLayer{LayerId: "notes", Active: false})

	setLayers := actionsOfKind(out, protocol.KindSetLayers)
	assert.Equal(t, len(setLayers), 1)
	layers := setLayers[0].(*protocol.SetLayers).Layers
	for _, layer := range layers {
		assert.Equal(t, layer.Active, layer.Id != "notes")
	}

	setTools := actionsOfKind(out, protocol.KindSetTools)
	assert.Equal(t, len(setTools), 1)
	assert.Equal(t, slices.Contains(toolIds(setTools[0].(*protocol.SetTools).Tools), "note-palette"), false)

	setOperations := actionsOfKind(out, protocol.KindSetOperations)
	assert.Equal(t, len(setOperations), 1)
	assert.Equal(t, slices.Contains(operationIds(setOperations[0].(*protocol.SetOperations).Operations), "createNode.note"), false)

	// repeating the same state is a no-op, nothing rebroadcast
	out = dispatch(engine, clientId, &protocol.ToggleLayer{LayerId: "notes", Active: false})
	assert.Equal(t, len(out), 0)

	// toggling back restores the original lists
	dispatch(engine, clientId, &protocol.ToggleLayer{LayerId: "notes", Active: true})
	assert.Equal(t, session.lastTools, toolsBefore)
	assert.Equal(t, session.lastOperations, operationsBefore)
}

func TestToggleUnknownLayer(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	readySession(t, engine, clientId)

	out := dispatch(engine, clientId, &protocol.ToggleLayer{LayerId: "annotations", Active: true})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeInvalidElementReference)
}

func TestToggleLayerHidesModel(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	requestId, note := createNote(t, engine, clientId, session)
	dispatch(engine, clientId, &protocol.ResponseAction{
		Id: requestId,
		Action: &protocol.ComputedBounds{
			Bounds: []protocol.ElementAndBounds{
				{
					ElementId: note.Id,
					NewBounds: protocol.Bounds{X: 10, Y: 10, Width: 80, Height: 40},
				},
			},
			Revision: 1,
		},
	})
	assert.Equal(t, session.state, SessionStateReady)

	// hiding a layer the model uses relayouts before the broadcast
	out := dispatch(engine, clientId, &protocol.ToggleLayer{LayerId: "notes", Active: false})
	assert.Equal(t, len(actionsOfKind(out, protocol.KindSetLayers)), 1)
	requests := actionsOfKind(out, protocol.KindRequestAction)
	assert.Equal(t, len(requests), 1)
	assert.Equal(t, session.state, SessionStateAwaitingBounds)

	// the note is already gone from the measured candidate
	requestBounds := requests[0].(*protocol.RequestAction).Action.(*protocol.RequestBounds)
	assert.Equal(t, len(requestBounds.NewRoot.Children), 0)

	out = dispatch(engine, clientId, &protocol.ComputedBounds{
		Bounds:   []protocol.ElementAndBounds{},
		Revision: session.modelRevision,
	})
	updates := actionsOfKind(out, protocol.KindUpdateModel)
	assert.Equal(t, len(updates), 1)
	assert.Equal(t, len(updates[0].(*protocol.UpdateModel).NewRoot.Children), 0)

	// the full model still holds the note, only the visible subset changed
	assert.Equal(t, len(session.root.Children), 1)
	assert.Equal(t, session.root.Children[0].Id, note.Id)
}

func TestVisibleRootFiltersDanglingEdges(t *testing.T) {
	engine := testEngine()
	session := newSession(NewId().String(), engine.config)
	session.root = &protocol.ModelElement{
		Type: "graph",
		Id:   "root",
		Children: []*protocol.ModelElement{
			{Type: "task", Id: "task_1"},
			{Type: "note", Id: "note_1"},
			// no layer of its own, so it survives the layer filter and
			// must be removed as dangling
			{Type: "link", Id: "link_1", SourceId: "task_1", TargetId: "note_1"},
		},
	}
	session.activeLayers["notes"] = false

	visible := engine.visibleRoot(session)
	assert.Equal(t, len(visible.Children), 1)
	assert.Equal(t, visible.Children[0].Id, "task_1")
	// the session tree is untouched
	assert.Equal(t, len(session.root.Children), 3)
}

func TestEditOnInactiveLayer(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	dispatch(engine, clientId, &protocol.ToggleLayer{LayerId: "notes", Active: false})

	out := dispatch(engine, clientId, &protocol.CreateNode{
		ElementTypeId: "note",
		Location:      &protocol.Point{X: 10, Y: 10},
	})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Code, CodeOperationNotPermitted)
	assert.Equal(t, len(session.root.Children), 0)
}

func TestTypeHints(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()

	out := dispatch(engine, clientId, &protocol.RequestTypeHints{})
	setTypeHints := actionsOfKind(out, protocol.KindSetTypeHints)
	assert.Equal(t, len(setTypeHints), 1)
	hints := setTypeHints[0].(*protocol.SetTypeHints)

	byTypeId := map[string]protocol.NodeTypeHint{}
	for _, hint := range hints.NodeHints {
		byTypeId[hint.ElementTypeId] = hint
	}
	assert.Equal(t, byTypeId["task"].Deletable, true)
	assert.Equal(t, byTypeId["task"].Repositionable, true)
	assert.Equal(t, byTypeId["start"].Deletable, false)
	assert.Equal(t, byTypeId["start"].Repositionable, false)
	assert.Equal(t, byTypeId["container"].ContainableElementTypeIds, []string{"task"})

	assert.Equal(t, len(hints.EdgeHints), 1)
	assert.Equal(t, hints.EdgeHints[0].ElementTypeId, "flow-edge")
	assert.Equal(t, hints.EdgeHints[0].Routable, true)
}
