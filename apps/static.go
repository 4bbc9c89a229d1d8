package apps

import (
	"context"
	"sort"
)

// A StaticRegistry is a Registry and UserIndex backed by a fixed table of
// installed applications. Tests and example hosts use it in place of a real
// package manager.
type StaticRegistry struct {
	users   map[UserID]map[string]UID
	userIDs []UserID
}

// NewStaticRegistry returns a registry backed by the given table, keyed by
// user and then package name. The table is copied; mutating the argument
// afterwards does not affect the registry.
func NewStaticRegistry(users map[UserID]map[string]UID) *StaticRegistry {
	copied := make(map[UserID]map[string]UID, len(users))
	userIDs := make([]UserID, 0, len(users))
	for userID, packages := range users {
		installed := make(map[string]UID, len(packages))
		for packageName, uid := range packages {
			installed[packageName] = uid
		}
		copied[userID] = installed
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	return &StaticRegistry{users: copied, userIDs: userIDs}
}

// ApplicationUID returns the uid the package runs under for the given user.
func (r *StaticRegistry) ApplicationUID(ctx context.Context, packageName string, userID UserID) (UID, error) {
	if uid, ok := r.users[userID][packageName]; ok {
		return uid, nil
	}
	return InvalidUID, NewPackageNotFoundError(packageName, userID)
}

// ActiveUserIDs returns every user in the table in ascending order.
func (r *StaticRegistry) ActiveUserIDs(ctx context.Context) ([]UserID, error) {
	out := make([]UserID, len(r.userIDs))
	copy(out, r.userIDs)
	return out, nil
}
