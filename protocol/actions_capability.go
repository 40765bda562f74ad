package protocol

// layer/tool/type-hint capability actions. The first model, tool, and layer
// exchanges must all complete before a session is considered ready.

const (
	KindRequestTypeHints = "requestTypeHints"
	KindSetTypeHints     = "setTypeHints"
	KindRequestTools     = "requestTools"
	KindSetTools         = "setTools"
	KindRequestLayers    = "requestLayers"
	KindSetLayers        = "setLayers"
	KindToggleLayer      = "toggleLayer"
	KindSetOperations    = "setOperations"
)

func init() {
	register(KindRequestTypeHints, func() Action { return &RequestTypeHints{} })
	register(KindSetTypeHints, func() Action { return &SetTypeHints{} })
	register(KindRequestTools, func() Action { return &RequestTools{} })
	register(KindSetTools, func() Action { return &SetTools{} })
	register(KindRequestLayers, func() Action { return &RequestLayers{} })
	register(KindSetLayers, func() Action { return &SetLayers{} })
	register(KindToggleLayer, func() Action { return &ToggleLayer{} })
	register(KindSetOperations, func() Action { return &SetOperations{} })
}

type RequestTypeHints struct {
}

func (self *RequestTypeHints) Kind() string {
	return KindRequestTypeHints
}

type SetTypeHints struct {
	NodeHints []NodeTypeHint `json:"nodeHints"`
	EdgeHints []EdgeTypeHint `json:"edgeHints"`
}

func (self *SetTypeHints) Kind() string {
	return KindSetTypeHints
}

type RequestTools struct {
}

func (self *RequestTools) Kind() string {
	return KindRequestTools
}

type SetTools struct {
	Tools []Tool `json:"tools"`
}

func (self *SetTools) Kind() string {
	return KindSetTools
}

type RequestLayers struct {
}

func (self *RequestLayers) Kind() string {
	return KindRequestLayers
}

type SetLayers struct {
	Layers []Layer `json:"layers"`
}

func (self *SetLayers) Kind() string {
	return KindSetLayers
}

type ToggleLayer struct {
	LayerId string `json:"layerId"`
	Active  bool   `json:"active"`
}

func (self *ToggleLayer) Kind() string {
	return KindToggleLayer
}

type SetOperations struct {
	Operations []Operation `json:"operations"`
}

func (self *SetOperations) Kind() string {
	return KindSetOperations
}
