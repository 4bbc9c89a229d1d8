// Package camera describes the camera framework collaborators the access
// guard is wired against: the system-wide availability event stream and the
// enforcement hook that cuts off an application's camera session.
package camera

import "context"

// An ID identifies a physical or logical camera device. It is opaque to this
// module; the host camera service assigns it.
type ID string

// An AvailabilityObserver is notified as camera devices transition between
// open and closed anywhere on the host. The host delivers callbacks serially
// on a single notification executor.
type AvailabilityObserver interface {
	// CameraOpened is called when an application opens a camera device.
	CameraOpened(ctx context.Context, id ID, packageName string)
	// CameraClosed is called when a camera device is closed.
	CameraClosed(ctx context.Context, id ID)
}

// A Monitor is the host's camera availability event stream. Registration and
// unregistration must not block on callback delivery, and unregistering an
// observer that is not registered is a no-op; observers rely on both when
// they detach defensively.
type Monitor interface {
	RegisterAvailabilityObserver(observer AvailabilityObserver)
	UnregisterAvailabilityObserver(observer AvailabilityObserver)
}

// A Blocker cuts off an application's open camera session. Whether that means
// muting the stream, delivering black frames, or ending the session outright
// is up to the implementation, as is any retry of failed enforcement.
type Blocker interface {
	BlockAccess(ctx context.Context, packageName string, id ID) error
}
