package actor

import "fmt"

// Actor is anything a subpool can host and route messages to. Receive runs
// on the subpool's own event loop goroutine, never concurrently with any
// other Receive call on the same actor, mirroring the single-threaded
// message handling an Oscar actor gets from its owning subprocess.
type Actor interface {
	Receive(msg any) (any, error)
}

// ActorID identifies one hosted actor within a subpool.
type ActorID string

// Ref names an actor by the address of the subpool hosting it plus its ID
// within that subpool, the Go analogue of an Oscar ActorRef.
type Ref struct {
	Address string
	ID      ActorID
}

func (r Ref) String() string { return fmt.Sprintf("%s/%s", r.Address, r.ID) }

// CreateActorRequest is replayed against a fresh subpool by RecoverSubPool
// when auto-recovery is configured to recreate actors, so the pool retains
// enough information about an actor to rebuild it without the original
// caller being involved. TypeName/Params rather than a constructor closure:
// a subpool worker runs in its own OS process, and a Go func value cannot
// be gob-encoded across that boundary, so the actor is named and rebuilt
// from RegisterActorFactory instead of captured directly.
type CreateActorRequest struct {
	ID       ActorID
	TypeName string
	Params   []byte
}
