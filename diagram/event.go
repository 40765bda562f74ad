package diagram

import (
	"context"
	"os"
	"os/signal"

	"github.com/golang/glog"
)

// Event ties a context to process signals so binaries can shut down
// transports and sessions on SIGINT/SIGTERM.
type Event struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewEventWithContext(ctx context.Context) *Event {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Event{
		ctx:    cancelCtx,
		cancel: cancel,
	}
}

func (self *Event) Ctx() context.Context {
	return self.ctx
}

func (self *Event) SetOnSignals(signals ...os.Signal) {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, signals...)
	go func() {
		select {
		case s := <-signalChannel:
			glog.Infof("[event]signal %s\n", s)
			self.cancel()
		case <-self.ctx.Done():
		}
		signal.Stop(signalChannel)
	}()
}

func (self *Event) Cancel() {
	self.cancel()
}
