package permissions

import (
	"context"
	"sync"

	dErrors "batisecure/pkg/domain-errors"
)

// InMemoryRoleStore maps user IDs to roles in memory.
type InMemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewInMemoryRoleStore constructs an empty in-memory role store.
func NewInMemoryRoleStore() *InMemoryRoleStore {
	return &InMemoryRoleStore{roles: make(map[string]Role)}
}

// SetRole assigns a role to a user.
func (s *InMemoryRoleStore) SetRole(userID string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

func (s *InMemoryRoleStore) RoleByUserID(_ context.Context, userID string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[userID]
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return role, nil
}
