package diagram

import (
	"sync"

	"github.com/diagramworks/diagram/protocol"
)

type ObserverFunc func(envelope *protocol.Envelope)

// observerList fans outbound envelopes out to transports and any other
// observers of the engine. Notification makes a copy of the list, so
// observers may be added or removed from inside a callback.
type observerList struct {
	stateLock sync.Mutex

	nextObserverId int
	observers      map[int]ObserverFunc
}

func newObserverList() *observerList {
	return &observerList{
		observers: map[int]ObserverFunc{},
	}
}

// add registers the observer and returns a function that removes it.
func (self *observerList) add(observer ObserverFunc) func() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	observerId := self.nextObserverId
	self.nextObserverId += 1
	self.observers[observerId] = observer
	return func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		delete(self.observers, observerId)
	}
}

func (self *observerList) get() []ObserverFunc {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	observers := make([]ObserverFunc, 0, len(self.observers))
	for _, observer := range self.observers {
		observers = append(observers, observer)
	}
	return observers
}

// note all callbacks are wrapped to recover from errors
func (self *observerList) notify(envelope *protocol.Envelope) {
	for _, observer := range self.get() {
		func() {
			defer func() {
				recover()
			}()
			observer(envelope)
		}()
	}
}
