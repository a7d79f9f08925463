package actor

import (
	"fmt"
	"sync"
)

// ActorFactory builds an Actor from an opaque params blob. A subpool worker
// is a separate OS process from whatever called CreateActor, so an actor
// cannot cross that boundary as a closure the way it could when subpools
// were in-process goroutines — it is named and rebuilt on the worker side
// instead, the same shape RegisterMessageType already imposes on gob
// message types.
type ActorFactory func(params []byte) (Actor, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]ActorFactory)
)

// RegisterActorFactory makes an actor type constructible by name inside a
// subpool worker process. Both the process that calls CreateActor and the
// worker process that actually builds the actor are the same re-executed
// binary, so registrations made in an init() are visible on both sides —
// mirroring gob.Register's "every participant registers the same types"
// convention.
func RegisterActorFactory(typeName string, factory ActorFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

func buildActor(typeName string, params []byte) (Actor, error) {
	factoryMu.RLock()
	factory, ok := factories[typeName]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("actor: no registered factory for actor type %q", typeName)
	}
	return factory(params)
}
