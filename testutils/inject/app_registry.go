package inject

import (
	"context"

	"github.com/virtkit/vdk/apps"
)

// AppRegistry is an injected application registry.
type AppRegistry struct {
	apps.Registry
	ApplicationUIDFunc func(ctx context.Context, packageName string, userID apps.UserID) (apps.UID, error)
}

// ApplicationUID calls the injected ApplicationUID or the real version.
func (r *AppRegistry) ApplicationUID(
	ctx context.Context,
	packageName string,
	userID apps.UserID,
) (apps.UID, error) {
	if r.ApplicationUIDFunc == nil {
		return r.Registry.ApplicationUID(ctx, packageName, userID)
	}
	return r.ApplicationUIDFunc(ctx, packageName, userID)
}
