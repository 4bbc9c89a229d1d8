// Package virtual manages the virtual devices whose displays host
// applications and guards host camera access on their behalf.
//
// The manager owns the guard's observation window: the guard observes camera
// usage while at least one virtual device exists. Whenever the set of uids
// rendered on some virtual display changes, the manager recomputes the union
// across devices and asks the guard to re-evaluate which open cameras to
// block. Re-evaluation is debounced because display topology changes tend to
// arrive in bursts.
package virtual

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/virtkit/vdk/apps"
)

// defaultRescanDebounce bounds how often bursty topology changes can trigger
// a blocking scan.
const defaultRescanDebounce = 50 * time.Millisecond

// ErrManagerClosed is returned by operations on a closed manager.
var ErrManagerClosed = errors.New("virtual device manager closed")

// An AccessGuard guards a host resource on behalf of virtual devices.
// *camguard.Guard implements it for cameras.
type AccessGuard interface {
	StartObservingIfNeeded()
	StopObservingIfNeeded()
	BlockCameraAccessIfNeeded(ctx context.Context, runningUIDs apps.UIDSet)
}

// deviceState is the manager's record of one virtual device.
type deviceState struct {
	name          string
	uids          apps.UIDSet
	createdAt     time.Time
	blockedEvents int
}

// A DeviceInfo describes one virtual device at a point in time.
type DeviceInfo struct {
	ID            uuid.UUID
	Name          string
	RunningUIDs   []apps.UID
	CreatedAt     time.Time
	BlockedEvents int
}

// A Manager tracks the virtual devices present on the host and drives an
// AccessGuard from their lifecycles. It is the running-uid-set provider: the
// host reports per-device display topology to it and it aggregates.
type Manager struct {
	guard  AccessGuard
	logger golog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	devices map[uuid.UUID]*deviceState
	closed  bool

	rescan    func(func())
	cancelCtx context.Context
	cancel    func()
}

// NewManager returns a manager driving the given guard.
func NewManager(guard AccessGuard, logger golog.Logger, opts ...Option) *Manager {
	var options options
	for _, opt := range opts {
		opt.apply(&options)
	}
	clk := options.clock
	if clk == nil {
		clk = clock.New()
	}
	window := options.rescanDebounce
	if window == 0 {
		window = defaultRescanDebounce
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		guard:     guard,
		logger:    logger,
		clock:     clk,
		devices:   map[uuid.UUID]*deviceState{},
		rescan:    debounce.New(window),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
}

// CreateDevice registers a new virtual device and starts guarding camera
// access for it. The returned id identifies the device in later calls.
func (m *Manager) CreateDevice(ctx context.Context, name string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return uuid.Nil, ErrManagerClosed
	}
	id := uuid.New()
	m.devices[id] = &deviceState{
		name:      name,
		uids:      apps.NewUIDSet(),
		createdAt: m.clock.Now(),
	}
	m.guard.StartObservingIfNeeded()
	m.logger.Infow("created virtual device", "id", id, "name", name)
	return id, nil
}

// CloseDevice removes a virtual device and schedules a rescan, since its
// uids no longer run on a virtual display.
func (m *Manager) CloseDevice(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	return m.closeDeviceLocked(id)
}

func (m *Manager) closeDeviceLocked(id uuid.UUID) error {
	device, ok := m.devices[id]
	if !ok {
		return errors.Errorf("no virtual device with id %q", id)
	}
	delete(m.devices, id)
	m.guard.StopObservingIfNeeded()
	m.logger.Infow("closed virtual device", "id", id, "name", device.name)
	m.scheduleRescanLocked()
	return nil
}

// SetDeviceUIDs records which uids currently render on the device's displays
// and schedules a blocking rescan. What runs where is decided by the host's
// display topology, not here.
func (m *Manager) SetDeviceUIDs(ctx context.Context, id uuid.UUID, uids apps.UIDSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	device, ok := m.devices[id]
	if !ok {
		return errors.Errorf("no virtual device with id %q", id)
	}
	device.uids = uids.Clone()
	m.logger.Debugw("virtual device uids updated",
		"id", id, "name", device.name, "uids", device.uids.UIDs())
	m.scheduleRescanLocked()
	return nil
}

// RunningUIDs returns the union of uids running on any virtual device.
func (m *Manager) RunningUIDs() apps.UIDSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningUIDsLocked()
}

func (m *Manager) runningUIDsLocked() apps.UIDSet {
	union := apps.NewUIDSet()
	for _, device := range m.devices {
		for uid := range device.uids {
			union.Add(uid)
		}
	}
	return union
}

func (m *Manager) scheduleRescanLocked() {
	m.rescan(m.doRescan)
}

// doRescan runs on the debounce timer goroutine once a burst of topology
// changes settles.
func (m *Manager) doRescan() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	runningUIDs := m.runningUIDsLocked()
	m.mu.Unlock()

	// The guard serializes internally; holding our lock across the call
	// would deadlock with OnCameraAccessBlocked.
	m.guard.BlockCameraAccessIfNeeded(m.cancelCtx, runningUIDs)
}

// OnCameraAccessBlocked records a blocking event against every device
// currently hosting the blocked uid. Wire it into the guard as its
// BlockedFunc.
func (m *Manager) OnCameraAccessBlocked(uid apps.UID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attributed := false
	for id, device := range m.devices {
		if device.uids.Contains(uid) {
			device.blockedEvents++
			attributed = true
			m.logger.Infow("camera access blocked for virtual device",
				"id", id, "name", device.name, "uid", uid)
		}
	}
	if !attributed {
		m.logger.Debugw("camera access blocked for uid with no current virtual device", "uid", uid)
	}
}

// Devices returns a snapshot of the virtual devices sorted by creation time
// and then id.
func (m *Manager) Devices() []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceInfo, 0, len(m.devices))
	for id, device := range m.devices {
		out = append(out, DeviceInfo{
			ID:            id,
			Name:          device.name,
			RunningUIDs:   device.uids.UIDs(),
			CreatedAt:     device.createdAt,
			BlockedEvents: device.blockedEvents,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close closes all remaining devices, balancing the guard's observer count,
// and stops future rescans. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	var err error
	for _, id := range m.deviceIDsLocked() {
		err = multierr.Combine(err, m.closeDeviceLocked(id))
	}
	m.closed = true
	m.cancel()
	return err
}

func (m *Manager) deviceIDsLocked() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	return ids
}
