package identity

import (
	"sync"

	"github.com/Lokesh2Arvind/Quizchain/internal/domain"
	"github.com/Lokesh2Arvind/Quizchain/internal/errors"
)

// Registry maps active connection ids to lightweight user records. It is the
// leaf component every handler consults to resolve "who is this connection".
type Registry struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*domain.User),
	}
}

// Register binds a connection id to an identity. Re-registering the same
// connection id overwrites the previous record.
func (r *Registry) Register(connID, address, displayName string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := &domain.User{
		ConnID:      connID,
		Address:     address,
		DisplayName: displayName,
	}
	r.users[connID] = u
	return u
}

func (r *Registry) Get(connID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[connID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessage("Unknown connection"))
	}
	return u, nil
}

// SetRoom records which room the connection is currently in. An empty room
// id clears the binding.
func (r *Registry) SetRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[connID]; ok {
		u.RoomID = roomID
	}
}

func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, connID)
}

// Count reports the number of connected users, for the health check.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}
