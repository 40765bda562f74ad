package protocol

// structural edit operations plus the select/save steady-state actions.
// Each edit carries its operation kind implicitly via the action kind and is
// validated against the server's type hints before the model is touched.

const (
	KindCreateNode          = "createNode"
	KindCreateConnection    = "createConnection"
	KindDeleteElement       = "deleteElement"
	KindChangeBounds        = "changeBounds"
	KindChangeContainer     = "changeContainer"
	KindReconnectConnection = "reconnectConnection"
	KindRerouteConnection   = "rerouteConnection"
	KindSelectElements      = "selectElements"
	KindSaveModel           = "saveModel"
)

func init() {
	register(KindCreateNode, func() Action { return &CreateNode{} })
	register(KindCreateConnection, func() Action { return &CreateConnection{} })
	register(KindDeleteElement, func() Action { return &DeleteElement{} })
	register(KindChangeBounds, func() Action { return &ChangeBounds{} })
	register(KindChangeContainer, func() Action { return &ChangeContainer{} })
	register(KindReconnectConnection, func() Action { return &ReconnectConnection{} })
	register(KindRerouteConnection, func() Action { return &RerouteConnection{} })
	register(KindSelectElements, func() Action { return &SelectElements{} })
	register(KindSaveModel, func() Action { return &SaveModel{} })
}

type CreateNode struct {
	ElementTypeId string `json:"elementTypeId"`
	ContainerId   string `json:"containerId,omitempty"`
	Location      *Point `json:"location,omitempty"`
}

func (self *CreateNode) Kind() string {
	return KindCreateNode
}

type CreateConnection struct {
	ElementTypeId string `json:"elementTypeId"`
	SourceId      string `json:"sourceId"`
	TargetId      string `json:"targetId"`
}

func (self *CreateConnection) Kind() string {
	return KindCreateConnection
}

type DeleteElement struct {
	ElementIds []string `json:"elementIds"`
}

func (self *DeleteElement) Kind() string {
	return KindDeleteElement
}

type ChangeBounds struct {
	NewBounds []ElementAndBounds `json:"newBounds"`
}

func (self *ChangeBounds) Kind() string {
	return KindChangeBounds
}

type ChangeContainer struct {
	ElementId         string `json:"elementId"`
	TargetContainerId string `json:"targetContainerId"`
	Location          *Point `json:"location,omitempty"`
}

func (self *ChangeContainer) Kind() string {
	return KindChangeContainer
}

type ReconnectConnection struct {
	ConnectionId string `json:"connectionId"`
	SourceId     string `json:"sourceId"`
	TargetId     string `json:"targetId"`
}

func (self *ReconnectConnection) Kind() string {
	return KindReconnectConnection
}

type RerouteConnection struct {
	ConnectionId  string  `json:"connectionId"`
	RoutingPoints []Point `json:"routingPoints"`
}

func (self *RerouteConnection) Kind() string {
	return KindRerouteConnection
}

type SelectElements struct {
	SelectedElementIds   []string `json:"selectedElementIds,omitempty"`
	DeselectedElementIds []string `json:"deselectedElementIds,omitempty"`
}

func (self *SelectElements) Kind() string {
	return KindSelectElements
}

type SaveModel struct {
}

func (self *SaveModel) Kind() string {
	return KindSaveModel
}
