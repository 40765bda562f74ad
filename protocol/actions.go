package protocol

import (
	"encoding/json"
)

// model lifecycle, bounds handshake, status, and the identifiable
// request/response wrappers

const (
	KindRequestModel   = "requestModel"
	KindSetModel       = "setModel"
	KindUpdateModel    = "updateModel"
	KindRequestBounds  = "requestBounds"
	KindComputedBounds = "computedBounds"
	KindServerStatus   = "serverStatus"
	KindRequestAction  = "identifiableRequestAction"
	KindResponseAction = "identifiableResponseAction"
)

func init() {
	register(KindRequestModel, func() Action { return &RequestModel{} })
	register(KindSetModel, func() Action { return &SetModel{} })
	register(KindUpdateModel, func() Action { return &UpdateModel{} })
	register(KindRequestBounds, func() Action { return &RequestBounds{} })
	register(KindComputedBounds, func() Action { return &ComputedBounds{} })
	register(KindServerStatus, func() Action { return &ServerStatus{} })
	register(KindRequestAction, func() Action { return &RequestAction{} })
	register(KindResponseAction, func() Action { return &ResponseAction{} })
}

type RequestModel struct {
	Options map[string]string `json:"options,omitempty"`
}

func (self *RequestModel) Kind() string {
	return KindRequestModel
}

type SetModel struct {
	NewRoot *ModelElement `json:"newRoot"`
}

func (self *SetModel) Kind() string {
	return KindSetModel
}

type UpdateModel struct {
	NewRoot *ModelElement `json:"newRoot"`
	Matches []Match       `json:"matches,omitempty"`
	Animate bool          `json:"animate,omitempty"`
}

func (self *UpdateModel) Kind() string {
	return KindUpdateModel
}

// RequestBounds carries a candidate tree that the layout collaborator on the
// client side measures. The answer is a ComputedBounds tagged with the
// revision it was measured against.
type RequestBounds struct {
	NewRoot  *ModelElement `json:"newRoot"`
	Revision int64         `json:"revision"`
}

func (self *RequestBounds) Kind() string {
	return KindRequestBounds
}

type ComputedBounds struct {
	Bounds     []ElementAndBounds    `json:"bounds"`
	Alignments []ElementAndAlignment `json:"alignments,omitempty"`
	Revision   int64                 `json:"revision"`
}

func (self *ComputedBounds) Kind() string {
	return KindComputedBounds
}

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

type ServerStatus struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

func (self *ServerStatus) Kind() string {
	return KindServerStatus
}

// RequestAction wraps an arbitrary action with a caller-chosen id so that the
// eventual ResponseAction with the same id can be correlated to it.
type RequestAction struct {
	Id     string `json:"id"`
	Action Action `json:"-"`
}

func (self *RequestAction) Kind() string {
	return KindRequestAction
}

type wrapperJson struct {
	Id     string          `json:"id"`
	Action json.RawMessage `json:"action"`
}

func (self *RequestAction) MarshalJSON() ([]byte, error) {
	return marshalWrapper(self.Id, self.Action)
}

func (self *RequestAction) UnmarshalJSON(src []byte) error {
	id, action, err := unmarshalWrapper(src)
	if err != nil {
		return err
	}
	self.Id = id
	self.Action = action
	return nil
}

type ResponseAction struct {
	Id     string `json:"id"`
	Action Action `json:"-"`
}

func (self *ResponseAction) Kind() string {
	return KindResponseAction
}

func (self *ResponseAction) MarshalJSON() ([]byte, error) {
	return marshalWrapper(self.Id, self.Action)
}

func (self *ResponseAction) UnmarshalJSON(src []byte) error {
	id, action, err := unmarshalWrapper(src)
	if err != nil {
		return err
	}
	self.Id = id
	self.Action = action
	return nil
}

func marshalWrapper(id string, action Action) ([]byte, error) {
	actionBytes, err := EncodeAction(action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&wrapperJson{
		Id:     id,
		Action: actionBytes,
	})
}

func unmarshalWrapper(src []byte) (string, Action, error) {
	var wrapper wrapperJson
	if err := json.Unmarshal(src, &wrapper); err != nil {
		return "", nil, err
	}
	action, err := DecodeAction(wrapper.Action)
	if err != nil {
		return "", nil, err
	}
	return wrapper.Id, action, nil
}
