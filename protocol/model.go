package protocol

// plain value types, no identity

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Dimension struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ModelElement is one node of the graphical model tree. The server owns the
// authoritative tree; the client holds a render-only copy. `Revision` is only
// meaningful on the root. Edge elements carry `SourceId`/`TargetId`.
// `Id` is unique within one tree.
type ModelElement struct {
	Type          string          `json:"type"`
	Id            string          `json:"id"`
	Children      []*ModelElement `json:"children,omitempty"`
	Position      *Point          `json:"position,omitempty"`
	Size          *Dimension      `json:"size,omitempty"`
	Alignment     *Point          `json:"alignment,omitempty"`
	CanvasBounds  *Bounds         `json:"canvasBounds,omitempty"`
	Revision      int64           `json:"revision,omitempty"`
	SourceId      string          `json:"sourceId,omitempty"`
	TargetId      string          `json:"targetId,omitempty"`
	RoutingPoints []Point         `json:"routingPoints,omitempty"`
	Layer         string          `json:"layer,omitempty"`
	Text          string          `json:"text,omitempty"`
}

func (self *ModelElement) IsEdge() bool {
	return self.SourceId != "" || self.TargetId != ""
}

// Clone deep copies the element and its subtree.
func (self *ModelElement) Clone() *ModelElement {
	if self == nil {
		return nil
	}
	element := *self
	if self.Position != nil {
		position := *self.Position
		element.Position = &position
	}
	if self.Size != nil {
		size := *self.Size
		element.Size = &size
	}
	if self.Alignment != nil {
		alignment := *self.Alignment
		element.Alignment = &alignment
	}
	if self.CanvasBounds != nil {
		canvasBounds := *self.CanvasBounds
		element.CanvasBounds = &canvasBounds
	}
	if self.RoutingPoints != nil {
		element.RoutingPoints = append([]Point{}, self.RoutingPoints...)
	}
	if self.Children != nil {
		element.Children = make([]*ModelElement, len(self.Children))
		for i, child := range self.Children {
			element.Children[i] = child.Clone()
		}
	}
	return &element
}

// NodeTypeHint is the server-declared capability descriptor for a node
// element type. Hints are replaced wholesale on each setTypeHints broadcast,
// never partially patched.
type NodeTypeHint struct {
	ElementTypeId             string   `json:"elementTypeId"`
	Repositionable            bool     `json:"repositionable"`
	Deletable                 bool     `json:"deletable"`
	Resizable                 bool     `json:"resizable"`
	ContainableElementTypeIds []string `json:"containableElementTypeIds,omitempty"`
}

type EdgeTypeHint struct {
	ElementTypeId        string   `json:"elementTypeId"`
	Repositionable       bool     `json:"repositionable"`
	Deletable            bool     `json:"deletable"`
	Routable             bool     `json:"routable"`
	SourceElementTypeIds []string `json:"sourceElementTypeIds,omitempty"`
	TargetElementTypeIds []string `json:"targetElementTypeIds,omitempty"`
}

type Layer struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Tool struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type OperationKind string

const (
	OperationCreateNode       OperationKind = "createNode"
	OperationCreateConnection OperationKind = "createConnection"
	OperationDelete           OperationKind = "delete"
	OperationChangeBounds     OperationKind = "changeBounds"
	OperationChangeContainer  OperationKind = "changeContainer"
	OperationGeneric          OperationKind = "generic"
)

type Operation struct {
	Id            string        `json:"id"`
	ElementTypeId string        `json:"elementTypeId,omitempty"`
	Label         string        `json:"label"`
	OperationKind OperationKind `json:"operationKind"`
	Active        bool          `json:"active"`
}

// Match is one element-level record produced by the model-diff collaborator.
// The engine forwards matches opaquely to drive animated transitions.
type Match struct {
	Left          *ModelElement `json:"left,omitempty"`
	Right         *ModelElement `json:"right,omitempty"`
	LeftParentId  string        `json:"leftParentId,omitempty"`
	RightParentId string        `json:"rightParentId,omitempty"`
}

type ElementAndBounds struct {
	ElementId string `json:"elementId"`
	NewBounds Bounds `json:"newBounds"`
}

type ElementAndAlignment struct {
	ElementId    string `json:"elementId"`
	NewAlignment Point  `json:"newAlignment"`
}
