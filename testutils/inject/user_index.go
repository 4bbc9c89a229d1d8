package inject

import (
	"context"

	"github.com/virtkit/vdk/apps"
)

// UserIndex is an injected user index.
type UserIndex struct {
	apps.UserIndex
	ActiveUserIDsFunc func(ctx context.Context) ([]apps.UserID, error)
}

// ActiveUserIDs calls the injected ActiveUserIDs or the real version.
func (u *UserIndex) ActiveUserIDs(ctx context.Context) ([]apps.UserID, error) {
	if u.ActiveUserIDsFunc == nil {
		return u.UserIndex.ActiveUserIDs(ctx)
	}
	return u.ActiveUserIDsFunc(ctx)
}
