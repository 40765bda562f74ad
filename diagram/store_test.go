package diagram

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/diagramworks/diagram/protocol"
)

// memoryStore keeps models in a map, for tests that need a preloaded model.
type memoryStore struct {
	roots map[string]*protocol.ModelElement
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roots: map[string]*protocol.ModelElement{},
	}
}

func (self *memoryStore) Save(ctx context.Context, clientId string, root *protocol.ModelElement) error {
	self.roots[clientId] = root.Clone()
	return nil
}

func (self *memoryStore) Load(ctx context.Context, clientId string) (*protocol.ModelElement, error) {
	root, ok := self.roots[clientId]
	if !ok {
		return nil, nil
	}
	return root.Clone(), nil
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	assert.Equal(t, err, nil)

	root := &protocol.ModelElement{
		Type:     "graph",
		Id:       "root",
		Revision: 5,
		Children: []*protocol.ModelElement{
			{
				Type:     "task",
				Id:       "task_1",
				Position: &protocol.Point{X: 10, Y: 20},
				Size:     &protocol.Dimension{Width: 120, Height: 60},
			},
			{
				Type:     "flow-edge",
				Id:       "edge_1",
				SourceId: "task_1",
				TargetId: "task_2",
			},
		},
	}
	ctx := context.Background()
	err = store.Save(ctx, "client-a", root)
	assert.Equal(t, err, nil)

	loaded, err := store.Load(ctx, "client-a")
	assert.Equal(t, err, nil)
	assert.NotEqual(t, loaded, nil)
	assert.Equal(t, loaded.Revision, int64(5))
	assert.Equal(t, len(loaded.Children), 2)
	assert.Equal(t, loaded.Children[0].Id, "task_1")
	assert.Equal(t, *loaded.Children[0].Position, protocol.Point{X: 10, Y: 20})
	assert.Equal(t, loaded.Children[1].SourceId, "task_1")
}

func TestSnapshotMissing(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	assert.Equal(t, err, nil)

	loaded, err := store.Load(context.Background(), "never-saved")
	assert.Equal(t, err, nil)
	assert.Equal(t, loaded, nil)
}

func TestSnapshotOverwrite(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	assert.Equal(t, err, nil)

	ctx := context.Background()
	err = store.Save(ctx, "client-a", &protocol.ModelElement{Type: "graph", Id: "root", Revision: 1})
	assert.Equal(t, err, nil)
	err = store.Save(ctx, "client-a", &protocol.ModelElement{Type: "graph", Id: "root", Revision: 2})
	assert.Equal(t, err, nil)

	loaded, err := store.Load(ctx, "client-a")
	assert.Equal(t, err, nil)
	assert.Equal(t, loaded.Revision, int64(2))
}

func TestSaveModelAction(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	assert.Equal(t, err, nil)

	ctx := context.Background()
	engine := NewEngine(ctx, DefaultDiagramConfig(), store, nil, DefaultEngineSettings())
	clientId := NewId().String()
	session := readySession(t, engine, clientId)

	createFixed(t, engine, clientId, session, "task", 10, 10)

	out := dispatch(engine, clientId, &protocol.SaveModel{})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Severity, protocol.SeverityInfo)

	// a new engine on the same store serves the saved model
	engine2 := NewEngine(ctx, DefaultDiagramConfig(), store, nil, DefaultEngineSettings())
	out = dispatch(engine2, clientId, &protocol.RequestModel{})
	setModels := actionsOfKind(out, protocol.KindSetModel)
	assert.Equal(t, len(setModels), 1)
	assert.Equal(t, len(setModels[0].(*protocol.SetModel).NewRoot.Children), 1)
	assert.Equal(t, setModels[0].(*protocol.SetModel).NewRoot.Children[0].Type, "task")
}

func TestSaveModelWithoutStore(t *testing.T) {
	engine := testEngine()
	clientId := NewId().String()
	readySession(t, engine, clientId)

	out := dispatch(engine, clientId, &protocol.SaveModel{})
	status := firstStatus(out)
	assert.NotEqual(t, status, nil)
	assert.Equal(t, status.Severity, protocol.SeverityWarning)
}
