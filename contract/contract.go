//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"presence-relay/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Transport delivers frames to live connections.
// Implementations must not block on slow peers.
type Transport interface {
	Send(id domain.ConnectionID, event string, payload any) error
	Close(id domain.ConnectionID) error
}

type SecretHasher interface {
	Hash(password string) (string, error)
	Compare(password, encodedHash string) (bool, error)
}

type ISessionRegistry interface {
	Register(id domain.ConnectionID, username string) error
	Unregister(id domain.ConnectionID)
	Lookup(id domain.ConnectionID) (string, bool)
	ListAll() []string
	Connections() []domain.ConnectionID
	Len() int
}

type IRoomDirectory interface {
	Exists(roomID domain.RoomID) bool
	Create(roomID domain.RoomID, password string) error
	Join(id domain.ConnectionID, roomID domain.RoomID, password string) error
	Leave(id domain.ConnectionID, roomID domain.RoomID) bool
	Evict(id domain.ConnectionID) []domain.RoomID
	MembersOf(roomID domain.RoomID) []string
	MemberIDs(roomID domain.RoomID) []domain.ConnectionID
	Len() int
}

type IEngine interface {
	Submit(ctx context.Context, cmd domain.Command) error
	Process(ctx context.Context, cmd domain.Command) ([]domain.Outbound, error)
}

type Censor interface {
	Censor(original string) (string, []string)
	Language(text string) string
}

// Gauges is the subset of monitoring the engine and transport feed.
type Gauges interface {
	SetSessions(n int)
	SetRooms(n int)
	IncrMessages()
	IncrErrors()
	IncrDropped()
}
