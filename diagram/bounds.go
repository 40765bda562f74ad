package diagram

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/diagramworks/diagram/protocol"
)

// The bounds handshake is the one operation that legitimately spans multiple
// inbound messages. The engine models it as the awaitingBounds state instead
// of a blocking call: the session keeps accepting messages, edits are queued,
// and other sessions are unaffected.
//
// A computedBounds whose revision does not equal the session's current model
// revision is the late answer to a superseded request and is discarded. The
// per-session ordering guarantee is what makes this check sufficient.

// beginBoundsHandshake stores the candidate tree with the current revision,
// moves the session to awaitingBounds, and emits an identifiable
// requestBounds carrying the visible candidate. A still-pending handshake is
// superseded, never merged; its late reply fails the revision check.
func (self *Engine) beginBoundsHandshake(session *Session) []protocol.Action {
	if session.pendingBounds != nil {
		glog.V(1).Infof("[%s]supersede bounds request rev=%d\n", session.clientId, session.pendingBounds.requestedRevision)
	}
	requestId := NewId().String()
	session.pendingBounds = &PendingBounds{
		requestedRevision: session.modelRevision,
		candidateRoot:     session.root,
		requestId:         requestId,
	}
	session.state = SessionStateAwaitingBounds

	session.pendingRequests[requestId] = &pendingRequest{
		actionKind: protocol.KindRequestBounds,
		sentTime:   time.Now(),
	}
	glog.V(1).Infof("[%s]request bounds rev=%d id=%s\n", session.clientId, session.modelRevision, requestId)
	return []protocol.Action{&protocol.RequestAction{
		Id: requestId,
		Action: &protocol.RequestBounds{
			NewRoot:  self.visibleRoot(session),
			Revision: session.modelRevision,
		},
	}}
}

func (self *Engine) handleComputedBounds(session *Session, action protocol.Action) []protocol.Action {
	computed := action.(*protocol.ComputedBounds)

	if session.pendingBounds == nil {
		if session.state == SessionStateAwaitingBounds {
			// awaiting but nothing in flight. Re-request.
			return self.beginBoundsHandshake(session)
		}
		glog.V(1).Infof("[%s]drop bounds, none pending\n", session.clientId)
		return nil
	}
	if computed.Revision != session.modelRevision {
		// stale: the layout answer arrived after a newer model
		// superseded it. Silently discarded, never surfaced.
		glog.V(1).Infof("[%s]%s: got rev=%d, current rev=%d\n", session.clientId, ErrStaleBoundsReply, computed.Revision, session.modelRevision)
		return nil
	}

	candidate := session.pendingBounds.candidateRoot
	index, err := indexById(candidate)
	if err != nil {
		return errorStatus(err, err.Error())
	}
	for _, elementBounds := range computed.Bounds {
		element, ok := index[elementBounds.ElementId]
		if !ok {
			glog.Infof("[%s]bounds for unknown element %s\n", session.clientId, elementBounds.ElementId)
			continue
		}
		element.Position = &protocol.Point{
			X: elementBounds.NewBounds.X,
			Y: elementBounds.NewBounds.Y,
		}
		element.Size = &protocol.Dimension{
			Width:  elementBounds.NewBounds.Width,
			Height: elementBounds.NewBounds.Height,
		}
	}
	for _, elementAlignment := range computed.Alignments {
		element, ok := index[elementAlignment.ElementId]
		if !ok {
			glog.Infof("[%s]alignment for unknown element %s\n", session.clientId, elementAlignment.ElementId)
			continue
		}
		alignment := elementAlignment.NewAlignment
		element.Alignment = &alignment
	}

	// commit. The awaiting context of an unwrapped reply is consumed here.
	delete(session.pendingRequests, session.pendingBounds.requestId)
	session.root = candidate
	session.pendingBounds = nil
	session.modelRevision += 1
	session.root.Revision = session.modelRevision
	// a handshake can start before the capability exchanges finish (a layer
	// toggle against a snapshot-loaded model), so the commit re-checks the
	// ready preconditions instead of assuming them
	session.state = SessionStateAwaitingCapabilities
	session.maybeReady()
	glog.V(1).Infof("[%s]bounds committed rev=%d state=%s\n", session.clientId, session.modelRevision, session.state)

	out := []protocol.Action{self.modelBroadcast(session)}
	out = append(out, self.operationsChange(session)...)
	out = append(out, self.drainEditQueue(session)...)
	return out
}

// drainEditQueue replays edits queued during awaitingBounds in arrival order.
// Replay stops if an edit re-enters the bounds handshake; the remainder stays
// queued for the next commit.
func (self *Engine) drainEditQueue(session *Session) []protocol.Action {
	out := []protocol.Action{}
	for session.state == SessionStateReady && 0 < len(session.editQueue) {
		queued := session.editQueue[0]
		session.editQueue = session.editQueue[1:]
		handler, ok := self.handlers[queued.Kind()]
		if !ok {
			out = append(out, errorStatus(ErrUnknownActionKind, fmt.Sprintf("Unknown action kind: %s.", queued.Kind()))...)
			continue
		}
		glog.V(1).Infof("[%s]replay %s\n", session.clientId, queued.Kind())
		out = append(out, handler(session, queued)...)
	}
	return out
}
