package runtime

import (
	"presence-relay/contract"
	"presence-relay/domain"
	"presence-relay/errors"

	"github.com/samber/lo"
)

var _ contract.ISessionRegistry = (*SessionRegistry)(nil)

// SessionRegistry maps connections to display names and remembers the order
// in which connections registered.
// It is not safe for concurrent use: the Engine loop is its only owner.
type SessionRegistry struct {
	names map[domain.ConnectionID]string
	order []domain.ConnectionID
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{names: make(map[domain.ConnectionID]string)}
}

// Register inserts or overwrites the name bound to id.
// An overwrite keeps the connection at its original position.
func (r *SessionRegistry) Register(id domain.ConnectionID, username string) error {
	if username == "" {
		return errors.ErrMissingUsername
	}
	if _, ok := r.names[id]; !ok {
		r.order = append(r.order, id)
	}
	r.names[id] = username
	return nil
}

func (r *SessionRegistry) Unregister(id domain.ConnectionID) {
	if _, ok := r.names[id]; !ok {
		return
	}
	delete(r.names, id)
	r.order = lo.Without(r.order, id)
}

func (r *SessionRegistry) Lookup(id domain.ConnectionID) (string, bool) {
	name, ok := r.names[id]
	return name, ok
}

// ListAll returns the display names in registration order.
func (r *SessionRegistry) ListAll() []string {
	return lo.Map(r.order, func(id domain.ConnectionID, _ int) string {
		return r.names[id]
	})
}

// Connections returns the registered connections in registration order.
func (r *SessionRegistry) Connections() []domain.ConnectionID {
	out := make([]domain.ConnectionID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *SessionRegistry) Len() int {
	return len(r.order)
}
