// Package camguard tracks which applications hold cameras open and blocks
// camera access for applications rendered on virtual displays.
//
// A Guard subscribes to the host's camera availability stream while at least
// one caller has asked it to observe, maintains a table of the open cameras
// and the uids holding them, and on demand blocks access for every open
// camera held by a uid currently running on a virtual display.
package camguard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/virtkit/vdk/apps"
	"github.com/virtkit/vdk/camera"
)

// A BlockedFunc is called with the uid of an application immediately after
// its camera access was blocked. It is fire-and-forget; the guard ignores
// anything it does.
type BlockedFunc func(uid apps.UID)

// openCameraInfo is the guard's record of a single open camera device.
type openCameraInfo struct {
	packageName string
	holderUIDs  apps.UIDSet
	openedAt    time.Time
	// blocked latches once enforcement has been triggered for this open
	// session so repeated scans do not re-block it.
	blocked bool
}

// matchHolder reports whether any holder uid is in runningUIDs. Any match
// qualifies; the lowest matching uid is returned only so the reported value
// is deterministic.
func (info *openCameraInfo) matchHolder(runningUIDs apps.UIDSet) (apps.UID, bool) {
	matched, ok := apps.InvalidUID, false
	for uid := range info.holderUIDs {
		if !runningUIDs.Contains(uid) {
			continue
		}
		if !ok || uid < matched {
			matched, ok = uid, true
		}
	}
	return matched, ok
}

// A Guard watches camera usage on behalf of virtual devices and blocks
// camera access for applications running on them. It implements
// camera.AvailabilityObserver. All collaborators are injected at
// construction and never re-acquired.
type Guard struct {
	monitor   camera.Monitor
	registry  apps.Registry
	users     apps.UserIndex
	blocker   camera.Blocker
	onBlocked BlockedFunc
	logger    golog.Logger
	clock     clock.Clock

	mu            sync.Mutex
	observerCount int
	openCameras   map[camera.ID]*openCameraInfo
}

// New returns a guard wired against the given collaborators. onBlocked may
// be nil if nothing needs post-enforcement notifications.
func New(
	monitor camera.Monitor,
	registry apps.Registry,
	users apps.UserIndex,
	blocker camera.Blocker,
	onBlocked BlockedFunc,
	logger golog.Logger,
	opts ...Option,
) *Guard {
	var options options
	for _, opt := range opts {
		opt.apply(&options)
	}
	clk := options.clock
	if clk == nil {
		clk = clock.New()
	}
	return &Guard{
		monitor:     monitor,
		registry:    registry,
		users:       users,
		blocker:     blocker,
		onBlocked:   onBlocked,
		logger:      logger,
		clock:       clk,
		openCameras: map[camera.ID]*openCameraInfo{},
	}
}

// StartObservingIfNeeded starts watching for camera usage if we were not
// already doing so. Every call must eventually be balanced by a call to
// StopObservingIfNeeded.
func (g *Guard) StartObservingIfNeeded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.observerCount == 0 {
		g.monitor.RegisterAvailabilityObserver(g)
	}
	g.observerCount++
}

// StopObservingIfNeeded stops watching for camera usage once the last
// observer is gone.
func (g *Guard) StopObservingIfNeeded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observerCount--
	if g.observerCount <= 0 {
		g.closeLocked()
	}
}

// Observing reports whether the guard is subscribed to the availability
// stream.
func (g *Guard) Observing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.observerCount > 0
}

// Close unconditionally detaches the guard from the availability stream and
// forgets all tracked cameras, regardless of how many observers remain. It
// never returns a non-nil error.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
	return nil
}

// closeLocked detaches from the availability stream and resets to the idle
// state. A negative observer count is a logic fault in a caller; it is
// surfaced loudly and then corrected.
func (g *Guard) closeLocked() {
	if g.observerCount < 0 {
		g.logger.Errorw("unexpected negative observer count", "count", g.observerCount)
	} else if g.observerCount > 0 {
		g.logger.Warnw("closing with observers remaining", "count", g.observerCount)
	}
	// Unregistering an unknown observer is a no-op, so detaching is safe
	// even if we never registered.
	g.monitor.UnregisterAvailabilityObserver(g)
	g.observerCount = 0
	g.openCameras = map[camera.ID]*openCameraInfo{}
}

// CameraOpened implements camera.AvailabilityObserver. It resolves the
// opening package to the uids it runs under across all active users and
// records them as holders of the camera. Events that arrive while the guard
// is not observing are dropped.
func (g *Guard) CameraOpened(ctx context.Context, id camera.ID, packageName string) {
	if !g.Observing() {
		g.logger.Debugw("dropping camera open event while not observing",
			"camera", id, "package", packageName)
		return
	}

	// Resolve before taking the lock; collaborator lookups may block.
	holderUIDs := g.resolvePackageUIDs(ctx, packageName)
	if holderUIDs.Len() == 0 {
		g.logger.Warnw("no uids resolved for open camera, not tracking it",
			"camera", id, "package", packageName)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.observerCount <= 0 {
		// Lost the subscription while resolving.
		return
	}
	info, ok := g.openCameras[id]
	switch {
	case !ok:
		g.openCameras[id] = &openCameraInfo{
			packageName: packageName,
			holderUIDs:  holderUIDs,
			openedAt:    g.clock.Now(),
		}
	case info.packageName == packageName:
		for uid := range holderUIDs {
			info.holderUIDs.Add(uid)
		}
	default:
		g.logger.Infow("open camera changed owners",
			"camera", id, "package", packageName, "previous_package", info.packageName)
		g.openCameras[id] = &openCameraInfo{
			packageName: packageName,
			holderUIDs:  holderUIDs,
			openedAt:    g.clock.Now(),
		}
	}
	g.logger.Debugw("camera opened", "camera", id, "package", packageName, "uids", holderUIDs.UIDs())
}

// CameraClosed implements camera.AvailabilityObserver. Closing a camera that
// is not tracked is a no-op.
func (g *Guard) CameraClosed(ctx context.Context, id camera.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.openCameras[id]; !ok {
		return
	}
	delete(g.openCameras, id)
	g.logger.Debugw("camera closed", "camera", id)
}

// resolvePackageUIDs returns the uids the package runs under across all
// active users. Users the package cannot be resolved for are skipped; the
// camera open event then simply cannot be matched against those uids later.
func (g *Guard) resolvePackageUIDs(ctx context.Context, packageName string) apps.UIDSet {
	holderUIDs := apps.NewUIDSet()
	userIDs, err := g.users.ActiveUserIDs(ctx)
	if err != nil {
		g.logger.Warnw("failed to enumerate active users", "package", packageName, "error", err)
		return holderUIDs
	}
	for _, userID := range userIDs {
		uid, err := g.registry.ApplicationUID(ctx, packageName, userID)
		if err != nil {
			g.logger.Warnw("unknown package for user",
				"package", packageName, "user", userID, "error", err)
			continue
		}
		if uid == apps.InvalidUID {
			continue
		}
		holderUIDs.Add(uid)
	}
	return holderUIDs
}

// BlockCameraAccessIfNeeded blocks camera access for every tracked open
// camera held by one of runningUIDs, the uids of the applications currently
// running on virtual displays. Any holder uid in runningUIDs qualifies a
// camera; which one matched does not matter. Each open session is blocked at
// most once: an already blocked camera is skipped until it closes or a scan
// finds its holders no longer running on a virtual display.
func (g *Guard) BlockCameraAccessIfNeeded(ctx context.Context, runningUIDs apps.UIDSet) {
	type blockRequest struct {
		packageName string
		cameraID    camera.ID
		uid         apps.UID
	}
	var toBlock []blockRequest

	g.mu.Lock()
	for id, info := range g.openCameras {
		uid, match := info.matchHolder(runningUIDs)
		if !match {
			// The holder left every virtual display; returning to one
			// should block again.
			info.blocked = false
			continue
		}
		if info.blocked {
			continue
		}
		info.blocked = true
		toBlock = append(toBlock, blockRequest{info.packageName, id, uid})
	}
	g.mu.Unlock()

	sort.Slice(toBlock, func(i, j int) bool { return toBlock[i].cameraID < toBlock[j].cameraID })

	// Enforce outside the lock so a slow blocker does not stall open/close
	// notifications.
	for _, req := range toBlock {
		g.startBlocking(ctx, req.packageName, req.cameraID, req.uid)
	}
}

// startBlocking turns on blocking for a particular camera and package, then
// notifies the registered callback. One camera's enforcement failure must
// not prevent enforcement for the rest, so failures are only logged.
func (g *Guard) startBlocking(ctx context.Context, packageName string, id camera.ID, uid apps.UID) {
	if err := g.blocker.BlockAccess(ctx, packageName, id); err != nil {
		g.logger.Errorw("failed to block camera access",
			"camera", id, "package", packageName, "uid", uid, "error", err)
		return
	}
	g.logger.Infow("blocked camera access", "camera", id, "package", packageName, "uid", uid)
	if g.onBlocked != nil {
		g.onBlocked(uid)
	}
}

// An OpenCamera describes one tracked open camera at a point in time.
type OpenCamera struct {
	CameraID    camera.ID
	PackageName string
	HolderUIDs  []apps.UID
	OpenedAt    time.Time
	Blocked     bool
}

// OpenCameras returns a snapshot of the tracked open cameras sorted by
// camera id.
func (g *Guard) OpenCameras() []OpenCamera {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]OpenCamera, 0, len(g.openCameras))
	for id, info := range g.openCameras {
		out = append(out, OpenCamera{
			CameraID:    id,
			PackageName: info.packageName,
			HolderUIDs:  info.holderUIDs.UIDs(),
			OpenedAt:    info.openedAt,
			Blocked:     info.blocked,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}
