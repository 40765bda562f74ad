package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"

	"github.com/diagramworks/diagram/protocol"
)

const TransportBufferSize = 32

// WsServer is the websocket edge of the engine. One connection carries one
// client session: the first envelope binds the connection to its clientId,
// every outbound envelope for that clientId is forwarded through the
// observer subscription, and a disconnect closes the session.

type WsServerSettings struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingTimeout  time.Duration
	ReadLimit    int64
}

func DefaultWsServerSettings() *WsServerSettings {
	return &WsServerSettings{
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingTimeout:  15 * time.Second,
		ReadLimit:    4 * 1024 * 1024,
	}
}

type WsServer struct {
	ctx context.Context

	engine   *Engine
	settings *WsServerSettings

	upgrader websocket.Upgrader
}

func NewWsServerWithDefaults(ctx context.Context, engine *Engine) *WsServer {
	return NewWsServer(ctx, engine, DefaultWsServerSettings())
}

func NewWsServer(ctx context.Context, engine *Engine, settings *WsServerSettings) *WsServer {
	return &WsServer{
		ctx:      ctx,
		engine:   engine,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (self *WsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("[ws]upgrade error = %s\n", err)
		return
	}
	self.run(ws)
}

func (self *WsServer) run(ws *websocket.Conn) {
	defer ws.Close()

	ws.SetReadLimit(self.settings.ReadLimit)

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	send := make(chan []byte, TransportBufferSize)

	// the clientId bound to this connection by its first envelope
	var bindLock sync.Mutex
	boundClientId := ""
	bind := func(clientId string) {
		bindLock.Lock()
		defer bindLock.Unlock()
		if boundClientId == "" {
			boundClientId = clientId
		}
	}
	bound := func() string {
		bindLock.Lock()
		defer bindLock.Unlock()
		return boundClientId
	}

	removeObserver := self.engine.AddObserver(func(envelope *protocol.Envelope) {
		if envelope.ClientId != bound() {
			return
		}
		message, err := json.Marshal(envelope)
		if err != nil {
			glog.Infof("[ws]marshal error = %s\n", err)
			return
		}
		select {
		case <-handleCtx.Done():
		case send <- message:
		case <-time.After(self.settings.WriteTimeout):
			glog.Infof("[ws]drop %s->, send buffer full\n", envelope.ClientId)
		}
	})
	defer removeObserver()

	defer func() {
		if clientId := bound(); clientId != "" {
			self.engine.CloseSession(clientId)
		}
	}()

	// send
	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case message, ok := <-send:
				if !ok {
					return
				}
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
					// note that for websocket a deadline timeout cannot be recovered
					glog.Infof("[ws]%s-> error = %s\n", bound(), err)
					return
				}
				glog.V(2).Infof("[ws]%s->\n", bound())
			case <-time.After(self.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// receive
	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				glog.V(1).Infof("[ws]%s<- error = %s\n", bound(), err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(message) == 0 {
				// ping
				continue
			}

			envelope := &protocol.Envelope{}
			if err := json.Unmarshal(message, envelope); err != nil {
				glog.V(1).Infof("[ws]%s<- decode error = %s\n", bound(), err)
				self.replyDecodeError(handleCtx, send, message, err)
				continue
			}
			bind(envelope.ClientId)
			glog.V(2).Infof("[ws]%s<- %s\n", envelope.ClientId, envelope.Action.Kind())
			// outbound envelopes are delivered by the observer
			self.engine.Dispatch(envelope)
		default:
			glog.V(2).Infof("[ws]other=%d %s<-\n", messageType, bound())
		}
	}
}

// replyDecodeError surfaces an undecodable envelope as a serverStatus when
// the envelope header is readable, never as a transport fault.
func (self *WsServer) replyDecodeError(handleCtx context.Context, send chan []byte, message []byte, decodeErr error) {
	var head struct {
		ClientId string `json:"clientId"`
	}
	if err := json.Unmarshal(message, &head); err != nil || head.ClientId == "" {
		return
	}
	status := &protocol.ServerStatus{
		Severity: protocol.SeverityError,
		Message:  fmt.Sprintf("Cannot decode action: %s.", decodeErr),
	}
	var unknownKind *protocol.UnknownActionKindError
	if errors.As(decodeErr, &unknownKind) {
		status.Code = CodeUnknownActionKind
	}
	statusBytes, err := json.Marshal(&protocol.Envelope{
		ClientId: head.ClientId,
		Action:   status,
	})
	if err != nil {
		return
	}
	select {
	case <-handleCtx.Done():
	case send <- statusBytes:
	default:
	}
}
