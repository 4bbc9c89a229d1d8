package inject

import (
	"context"

	"github.com/virtkit/vdk/camera"
)

// CameraBlocker is an injected camera blocker.
type CameraBlocker struct {
	camera.Blocker
	BlockAccessFunc func(ctx context.Context, packageName string, id camera.ID) error
}

// BlockAccess calls the injected BlockAccess or the real version.
func (b *CameraBlocker) BlockAccess(ctx context.Context, packageName string, id camera.ID) error {
	if b.BlockAccessFunc == nil {
		return b.Blocker.BlockAccess(ctx, packageName, id)
	}
	return b.BlockAccessFunc(ctx, packageName, id)
}
