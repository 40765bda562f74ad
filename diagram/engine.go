package diagram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/diagramworks/diagram/protocol"
)

/*
The engine drives the session protocol between diagram clients and the
server-owned model:
- envelopes route through a kind -> handler table shared by all sessions
- each session is a logical sequential actor: all of its actions run in
  arrival order under the session lock, sessions run independently
- the model revision gates bounds replies so a late answer to an old
  layout request can never overwrite a newer model
- structural edits are validated against the type hints before the model
  is touched, and are queued while a bounds handshake is in flight
*/

type HandlerFunc func(session *Session, action protocol.Action) []protocol.Action

type EngineSettings struct {
	// edits queued while a bounds handshake is in flight. Past this the
	// edit is dropped with a warning status.
	EditQueueMaxSize int
	AnimateUpdates   bool
}

func DefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		EditQueueMaxSize: 128,
		AnimateUpdates:   true,
	}
}

// Matcher is the model-diff collaborator. Match records are consumed
// opaquely and forwarded on updateModel to drive animated transitions.
type Matcher interface {
	Match(oldRoot *protocol.ModelElement, newRoot *protocol.ModelElement) []protocol.Match
}

type Engine struct {
	ctx context.Context

	config   *DiagramConfig
	store    Store
	matcher  Matcher
	settings *EngineSettings

	// kind -> handler, populated in NewEngine, read-only afterwards
	handlers map[string]HandlerFunc

	observers *observerList

	stateLock sync.Mutex
	sessions  map[string]*Session
}

func NewEngineWithDefaults(ctx context.Context, config *DiagramConfig) *Engine {
	return NewEngine(ctx, config, nil, nil, DefaultEngineSettings())
}

func NewEngine(
	ctx context.Context,
	config *DiagramConfig,
	store Store,
	matcher Matcher,
	settings *EngineSettings,
) *Engine {
	engine := &Engine{
		ctx:       ctx,
		config:    config,
		store:     store,
		matcher:   matcher,
		settings:  settings,
		handlers:  map[string]HandlerFunc{},
		observers: newObserverList(),
		sessions:  map[string]*Session{},
	}
	engine.registerHandlers()
	return engine
}

func (self *Engine) register(kind string, handler HandlerFunc) {
	if _, ok := self.handlers[kind]; ok {
		panic(fmt.Sprintf("Duplicate handler registered: %s", kind))
	}
	self.handlers[kind] = handler
}

func (self *Engine) registerHandlers() {
	self.register(protocol.KindRequestModel, self.handleRequestModel)
	self.register(protocol.KindRequestTools, self.handleRequestTools)
	self.register(protocol.KindRequestLayers, self.handleRequestLayers)
	self.register(protocol.KindRequestTypeHints, self.handleRequestTypeHints)
	self.register(protocol.KindComputedBounds, self.handleComputedBounds)
	self.register(protocol.KindToggleLayer, self.handleToggleLayer)
	self.register(protocol.KindCreateNode, self.handleCreateNode)
	self.register(protocol.KindCreateConnection, self.handleCreateConnection)
	self.register(protocol.KindDeleteElement, self.handleDeleteElement)
	self.register(protocol.KindChangeBounds, self.handleChangeBounds)
	self.register(protocol.KindChangeContainer, self.handleChangeContainer)
	self.register(protocol.KindReconnectConnection, self.handleReconnectConnection)
	self.register(protocol.KindRerouteConnection, self.handleRerouteConnection)
	self.register(protocol.KindSelectElements, self.handleSelectElements)
	self.register(protocol.KindSaveModel, self.handleSaveModel)
	self.register(protocol.KindRequestAction, self.handleIdentifiableRequest)
	self.register(protocol.KindResponseAction, self.handleIdentifiableResponse)
}

// AddObserver subscribes to every outbound envelope the engine produces.
// The returned function removes the observer.
func (self *Engine) AddObserver(observer ObserverFunc) func() {
	return self.observers.add(observer)
}

// Dispatch routes one inbound envelope and returns the outbound envelopes it
// produced. Outbound envelopes are also published to the observers, which is
// how transports deliver them.
func (self *Engine) Dispatch(envelope *protocol.Envelope) []*protocol.Envelope {
	outActions := self.dispatch(envelope)
	outEnvelopes := make([]*protocol.Envelope, 0, len(outActions))
	for _, outAction := range outActions {
		outEnvelope := &protocol.Envelope{
			ClientId: envelope.ClientId,
			Action:   outAction,
		}
		outEnvelopes = append(outEnvelopes, outEnvelope)
		self.observers.notify(outEnvelope)
	}
	return outEnvelopes
}

func (self *Engine) dispatch(envelope *protocol.Envelope) []protocol.Action {
	kind := envelope.Action.Kind()

	session := self.session(envelope.ClientId, kind)
	if session == nil {
		glog.Infof("[%s]drop %s, no session\n", envelope.ClientId, kind)
		return errorStatus(ErrUnknownSession, fmt.Sprintf("No session for client %s.", envelope.ClientId))
	}

	session.stateLock.Lock()
	defer session.stateLock.Unlock()

	if session.state == SessionStateClosed {
		return errorStatus(ErrUnknownSession, fmt.Sprintf("Session %s is closed.", envelope.ClientId))
	}

	handler, ok := self.handlers[kind]
	if !ok {
		glog.Infof("[%s]unknown action kind %s\n", envelope.ClientId, kind)
		return errorStatus(ErrUnknownActionKind, fmt.Sprintf("Unknown action kind: %s.", kind))
	}

	// edits must not race a half-applied layout. Queue them and replay
	// after the bounds round-trip resolves.
	if session.state == SessionStateAwaitingBounds && isQueuedKind(kind) {
		if self.settings.EditQueueMaxSize <= len(session.editQueue) {
			glog.Infof("[%s]edit queue full, drop %s\n", envelope.ClientId, kind)
			return []protocol.Action{&protocol.ServerStatus{
				Severity: protocol.SeverityWarning,
				Message:  fmt.Sprintf("Edit queue full, dropped %s.", kind),
			}}
		}
		glog.V(1).Infof("[%s]queue %s awaiting bounds\n", envelope.ClientId, kind)
		session.editQueue = append(session.editQueue, envelope.Action)
		return nil
	}

	glog.V(2).Infof("[%s]%s state=%s rev=%d\n", envelope.ClientId, kind, session.state, session.modelRevision)
	return handler(session, envelope.Action)
}

// session returns the row for the client, creating it when the action is one
// of the capability requests that may open a session.
func (self *Engine) session(clientId string, kind string) *Session {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	session, ok := self.sessions[clientId]
	if ok {
		return session
	}
	if !isCapabilityRequestKind(kind) {
		return nil
	}
	session = newSession(clientId, self.config)
	self.sessions[clientId] = session
	glog.V(1).Infof("[%s]session created\n", clientId)
	return session
}

// CloseSession removes the session row. Called by the transport on
// disconnect. Any envelope addressed to this clientId afterwards yields an
// unknownSession status.
func (self *Engine) CloseSession(clientId string) {
	self.stateLock.Lock()
	session, ok := self.sessions[clientId]
	if ok {
		delete(self.sessions, clientId)
	}
	self.stateLock.Unlock()

	if !ok {
		return
	}
	session.stateLock.Lock()
	defer session.stateLock.Unlock()
	session.state = SessionStateClosed
	session.pendingBounds = nil
	session.pendingRequests = map[string]*pendingRequest{}
	session.editQueue = nil
	glog.V(1).Infof("[%s]session closed\n", clientId)
}

func isCapabilityRequestKind(kind string) bool {
	switch kind {
	case protocol.KindRequestModel,
		protocol.KindRequestTools,
		protocol.KindRequestLayers,
		protocol.KindRequestTypeHints:
		return true
	default:
		return false
	}
}

// isQueuedKind covers the actions held back while a bounds handshake is in
// flight: the structural edits plus layer toggles, which also mutate the
// visible model.
func isQueuedKind(kind string) bool {
	switch kind {
	case protocol.KindCreateNode,
		protocol.KindCreateConnection,
		protocol.KindDeleteElement,
		protocol.KindChangeBounds,
		protocol.KindChangeContainer,
		protocol.KindReconnectConnection,
		protocol.KindRerouteConnection,
		protocol.KindToggleLayer:
		return true
	default:
		return false
	}
}

func errorStatus(err error, message string) []protocol.Action {
	return []protocol.Action{&protocol.ServerStatus{
		Severity: protocol.SeverityError,
		Message:  message,
		Code:     statusCode(err),
	}}
}

// model lifecycle and capability handlers. All of these run under the
// session lock and are idempotent to repeat.

func (self *Engine) handleRequestModel(session *Session, action protocol.Action) []protocol.Action {
	if session.root == nil {
		if self.store != nil {
			root, err := self.store.Load(self.ctx, session.clientId)
			if err != nil {
				glog.Infof("[%s]snapshot load error = %s\n", session.clientId, err)
			} else if root != nil {
				session.root = root
			}
		}
		if session.root == nil {
			session.root = &protocol.ModelElement{
				Type:     self.config.RootType,
				Id:       self.config.RootId,
				Children: []*protocol.ModelElement{},
			}
		}
		// the initial model is emitted at the current revision without
		// incrementing. Only committed mutations increment.
		session.root.Revision = session.modelRevision
	}
	session.modelSupplied = true
	session.maybeReady()

	visible := self.visibleRoot(session)
	session.lastEmittedRoot = visible
	session.modelEmitted = true
	return []protocol.Action{&protocol.SetModel{NewRoot: visible}}
}

func (self *Engine) handleRequestTools(session *Session, action protocol.Action) []protocol.Action {
	session.toolsSupplied = true
	session.maybeReady()

	tools := computeTools(self.config, session.activeLayers)
	operations := computeOperations(self.config, session)
	session.lastTools = tools
	session.lastOperations = operations
	return []protocol.Action{
		&protocol.SetTools{Tools: tools},
		&protocol.SetOperations{Operations: operations},
	}
}

func (self *Engine) handleRequestLayers(session *Session, action protocol.Action) []protocol.Action {
	session.layersSupplied = true
	session.maybeReady()

	return []protocol.Action{&protocol.SetLayers{Layers: self.layerList(session)}}
}

func (self *Engine) handleRequestTypeHints(session *Session, action protocol.Action) []protocol.Action {
	// replaced wholesale on each broadcast
	session.installHints(self.config)
	return []protocol.Action{&protocol.SetTypeHints{
		NodeHints: self.config.NodeHints(),
		EdgeHints: self.config.EdgeHints(),
	}}
}

func (self *Engine) handleSelectElements(session *Session, action protocol.Action) []protocol.Action {
	selectAction := action.(*protocol.SelectElements)
	if session.root == nil {
		return errorStatus(ErrInvalidElementReference, "No model to select in.")
	}
	index, err := indexById(session.root)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	for _, elementId := range append(
		append([]string{}, selectAction.SelectedElementIds...),
		selectAction.DeselectedElementIds...,
	) {
		if _, ok := index[elementId]; !ok {
			return errorStatus(ErrInvalidElementReference, fmt.Sprintf("Unknown element: %s.", elementId))
		}
	}
	for _, elementId := range selectAction.SelectedElementIds {
		session.selection[elementId] = true
	}
	for _, elementId := range selectAction.DeselectedElementIds {
		delete(session.selection, elementId)
	}
	return nil
}

func (self *Engine) handleSaveModel(session *Session, action protocol.Action) []protocol.Action {
	if session.root == nil {
		return errorStatus(ErrInvalidElementReference, "No model to save.")
	}
	if self.store == nil {
		return []protocol.Action{&protocol.ServerStatus{
			Severity: protocol.SeverityWarning,
			Message:  "No persistence configured.",
		}}
	}
	if err := self.store.Save(self.ctx, session.clientId, session.root.Clone()); err != nil {
		glog.Infof("[%s]save error = %s\n", session.clientId, err)
		return []protocol.Action{&protocol.ServerStatus{
			Severity: protocol.SeverityError,
			Message:  fmt.Sprintf("Save failed: %s.", err),
			Code:     CodeSaveFailed,
		}}
	}
	return []protocol.Action{&protocol.ServerStatus{
		Severity: protocol.SeverityInfo,
		Message:  "Model saved.",
	}}
}

// identifiable request/response correlation

func (self *Engine) handleIdentifiableRequest(session *Session, action protocol.Action) []protocol.Action {
	request := action.(*protocol.RequestAction)
	innerKind := request.Action.Kind()
	handler, ok := self.handlers[innerKind]
	if !ok {
		return errorStatus(ErrUnknownActionKind, fmt.Sprintf("Unknown action kind: %s.", innerKind))
	}
	if session.state == SessionStateAwaitingBounds && isQueuedKind(innerKind) {
		// the queue bound applies to wrapped edits the same as bare ones
		if self.settings.EditQueueMaxSize <= len(session.editQueue) {
			glog.Infof("[%s]edit queue full, drop %s\n", session.clientId, innerKind)
			return []protocol.Action{&protocol.ResponseAction{
				Id: request.Id,
				Action: &protocol.ServerStatus{
					Severity: protocol.SeverityWarning,
					Message:  fmt.Sprintf("Edit queue full, dropped %s.", innerKind),
				},
			}}
		}
		// queue the wrapper so the response keeps its id after replay
		session.editQueue = append(session.editQueue, request)
		return nil
	}
	out := handler(session, request.Action)
	if 0 < len(out) {
		out[0] = &protocol.ResponseAction{
			Id:     request.Id,
			Action: out[0],
		}
	}
	return out
}

func (self *Engine) handleIdentifiableResponse(session *Session, action protocol.Action) []protocol.Action {
	response := action.(*protocol.ResponseAction)
	waiting, ok := session.pendingRequests[response.Id]
	if !ok {
		// duplicate or spoofed id. Logged and dropped, not fatal.
		glog.Infof("[%s]response for unknown request id %s\n", session.clientId, response.Id)
		return errorStatus(ErrUnknownRequestId, fmt.Sprintf("Unknown request id: %s.", response.Id))
	}
	delete(session.pendingRequests, response.Id)
	glog.V(2).Infof("[%s]response %s after %s\n", session.clientId, response.Id, time.Since(waiting.sentTime))

	innerKind := response.Action.Kind()
	handler, ok := self.handlers[innerKind]
	if !ok {
		return errorStatus(ErrUnknownActionKind, fmt.Sprintf("Unknown action kind: %s.", innerKind))
	}
	return handler(session, response.Action)
}

// modelBroadcast emits the committed model: setModel the first time, then
// updateModel with matches from the model-diff collaborator when one is
// configured.
func (self *Engine) modelBroadcast(session *Session) protocol.Action {
	visible := self.visibleRoot(session)
	var out protocol.Action
	if !session.modelEmitted {
		session.modelEmitted = true
		out = &protocol.SetModel{NewRoot: visible}
	} else {
		update := &protocol.UpdateModel{
			NewRoot: visible,
			Animate: self.settings.AnimateUpdates,
		}
		if self.matcher != nil && session.lastEmittedRoot != nil {
			update.Matches = self.matcher.Match(session.lastEmittedRoot, visible)
		}
		out = update
	}
	session.lastEmittedRoot = visible
	return out
}
