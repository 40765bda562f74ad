package diagram

import (
	"sync"
	"time"

	"github.com/diagramworks/diagram/protocol"
)

type SessionState int

const (
	SessionStateAwaitingCapabilities SessionState = iota
	SessionStateReady
	SessionStateAwaitingBounds
	SessionStateClosed
)

func (self SessionState) String() string {
	switch self {
	case SessionStateAwaitingCapabilities:
		return "awaitingCapabilities"
	case SessionStateReady:
		return "ready"
	case SessionStateAwaitingBounds:
		return "awaitingBounds"
	case SessionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PendingBounds exists only between a requestBounds send and the matching
// computedBounds receive. It is destroyed on receipt, superseded by a newer
// bounds request, or dropped on session teardown.
type PendingBounds struct {
	requestedRevision int64
	candidateRoot     *protocol.ModelElement
	// the identifiable request carrying this handshake, so the awaiting
	// context can be consumed even when the reply arrives unwrapped
	requestId string
}

// pendingRequest is the awaiting context for one identifiable request id.
type pendingRequest struct {
	actionKind string
	sentTime   time.Time
}

// Session is the per-client row of the engine. All fields below stateLock are
// only touched while holding it, which is what serializes all actions for one
// clientId (the per-session actor guarantee).
type Session struct {
	clientId string

	stateLock sync.Mutex

	state         SessionState
	modelRevision int64
	root          *protocol.ModelElement

	pendingBounds   *PendingBounds
	pendingRequests map[string]*pendingRequest
	editQueue       []protocol.Action

	activeLayers map[string]bool
	nodeHints    map[string]protocol.NodeTypeHint
	edgeHints    map[string]protocol.EdgeTypeHint
	selection    map[string]bool

	// capability handshake preconditions. Ready once all three are
	// satisfied and a model has been set.
	modelSupplied  bool
	toolsSupplied  bool
	layersSupplied bool

	// last broadcast lists, compared on recompute so unchanged lists are
	// not rebroadcast
	lastTools      []protocol.Tool
	lastOperations []protocol.Operation

	// the visible tree most recently emitted, kept for the model-diff
	// collaborator
	lastEmittedRoot *protocol.ModelElement
	modelEmitted    bool
}

func newSession(clientId string, config *DiagramConfig) *Session {
	session := &Session{
		clientId:        clientId,
		state:           SessionStateAwaitingCapabilities,
		pendingRequests: map[string]*pendingRequest{},
		activeLayers:    config.DefaultActiveLayers(),
		nodeHints:       map[string]protocol.NodeTypeHint{},
		edgeHints:       map[string]protocol.EdgeTypeHint{},
		selection:       map[string]bool{},
	}
	session.installHints(config)
	return session
}

// installHints replaces the session's type hints wholesale from the config.
// Hints are never partially patched.
func (self *Session) installHints(config *DiagramConfig) {
	nodeHints := map[string]protocol.NodeTypeHint{}
	for _, hint := range config.NodeHints() {
		nodeHints[hint.ElementTypeId] = hint
	}
	edgeHints := map[string]protocol.EdgeTypeHint{}
	for _, hint := range config.EdgeHints() {
		edgeHints[hint.ElementTypeId] = hint
	}
	self.nodeHints = nodeHints
	self.edgeHints = edgeHints
}

func (self *Session) maybeReady() {
	if self.state != SessionStateAwaitingCapabilities {
		return
	}
	if self.modelSupplied && self.toolsSupplied && self.layersSupplied && self.root != nil {
		self.state = SessionStateReady
	}
}

// acceptsEdits reports whether a structural edit may execute now. Edits in
// awaitingBounds are queued by the dispatcher before this is consulted.
func (self *Session) acceptsEdits() bool {
	return self.state == SessionStateReady && self.root != nil
}
