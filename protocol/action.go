package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Every message on the wire is an `Envelope`: a client id plus one action.
// Actions are a closed tagged union discriminated by the `kind` field.
// The kind registry is populated at init time and read-only afterwards,
// so it is safe to share across all sessions.

type Action interface {
	Kind() string
}

type Envelope struct {
	ClientId string
	Action   Action
}

type envelopeJson struct {
	ClientId string          `json:"clientId"`
	Action   json.RawMessage `json:"action"`
}

func (self *Envelope) MarshalJSON() ([]byte, error) {
	actionBytes, err := EncodeAction(self.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&envelopeJson{
		ClientId: self.ClientId,
		Action:   actionBytes,
	})
}

func (self *Envelope) UnmarshalJSON(src []byte) error {
	var envelope envelopeJson
	if err := json.Unmarshal(src, &envelope); err != nil {
		return err
	}
	action, err := DecodeAction(envelope.Action)
	if err != nil {
		return err
	}
	self.ClientId = envelope.ClientId
	self.Action = action
	return nil
}

// kind -> empty action factory
var actionFactories = map[string]func() Action{}

// register is called from init only. A duplicate kind is a programming
// error that breaks the global kind uniqueness invariant, hence panic.
func register(kind string, factory func() Action) {
	if _, ok := actionFactories[kind]; ok {
		panic(fmt.Sprintf("Duplicate action kind registered: %s", kind))
	}
	actionFactories[kind] = factory
}

func RegisteredKinds() []string {
	kinds := []string{}
	for kind := range actionFactories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func DecodeAction(src []byte) (Action, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(src, &head); err != nil {
		return nil, err
	}
	factory, ok := actionFactories[head.Kind]
	if !ok {
		return nil, &UnknownActionKindError{ActionKind: head.Kind}
	}
	action := factory()
	if err := json.Unmarshal(src, action); err != nil {
		return nil, err
	}
	return action, nil
}

// EncodeAction marshals the action payload and injects the kind discriminant.
func EncodeAction(action Action) ([]byte, error) {
	payloadBytes, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	payload := map[string]json.RawMessage{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, err
	}
	kindBytes, err := json.Marshal(action.Kind())
	if err != nil {
		return nil, err
	}
	payload["kind"] = kindBytes
	return json.Marshal(payload)
}

type UnknownActionKindError struct {
	ActionKind string
}

func (self *UnknownActionKindError) Error() string {
	return fmt.Sprintf("Unknown action kind: %s", self.ActionKind)
}
