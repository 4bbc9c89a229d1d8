// Package fake implements an in-process camera service for tests and demos.
package fake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/virtkit/vdk/camera"
)

// notifyQueueSize bounds how many undelivered availability events may be
// outstanding before OpenCamera/CloseCamera block.
const notifyQueueSize = 64

// A BlockEvent records one enforcement call made against the service.
type BlockEvent struct {
	PackageName string
	CameraID    camera.ID
}

type notification struct {
	opened      bool
	id          camera.ID
	packageName string
}

// Service simulates the host camera service. It tracks which devices are
// open, delivers availability callbacks in order on one background goroutine
// the way the host's notification executor does, and records enforcement
// calls for assertions. It implements camera.Monitor and camera.Blocker.
type Service struct {
	mu          sync.Mutex
	logger      golog.Logger
	observers   []camera.AvailabilityObserver
	open        map[camera.ID]string
	blockErr    error
	blockEvents []BlockEvent
	pending     int
	closed      bool

	notifyCh                chan notification
	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// New returns a running service. Close it to stop the notification loop.
func New(logger golog.Logger) *Service {
	cancelCtx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		logger:    logger,
		open:      map[camera.ID]string{},
		notifyCh:  make(chan notification, notifyQueueSize),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	svc.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(svc.deliverNotifications, svc.activeBackgroundWorkers.Done)
	return svc
}

// RegisterAvailabilityObserver implements camera.Monitor.
func (svc *Service) RegisterAvailabilityObserver(observer camera.AvailabilityObserver) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.observers = append(svc.observers, observer)
}

// UnregisterAvailabilityObserver implements camera.Monitor. Unregistering an
// observer that was never registered is a no-op.
func (svc *Service) UnregisterAvailabilityObserver(observer camera.AvailabilityObserver) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for i, registered := range svc.observers {
		if registered == observer {
			svc.observers = append(svc.observers[:i], svc.observers[i+1:]...)
			return
		}
	}
}

// OpenCamera simulates packageName opening the given camera device and
// queues an availability callback.
func (svc *Service) OpenCamera(id camera.ID, packageName string) {
	svc.mu.Lock()
	svc.open[id] = packageName
	svc.mu.Unlock()
	svc.enqueue(notification{opened: true, id: id, packageName: packageName})
}

// CloseCamera simulates the given camera device closing and queues an
// availability callback. Closing a device that was never opened still
// notifies, matching hosts that deliver close events unconditionally.
func (svc *Service) CloseCamera(id camera.ID) {
	svc.mu.Lock()
	delete(svc.open, id)
	svc.mu.Unlock()
	svc.enqueue(notification{opened: false, id: id})
}

// OpenCameraIDs returns the ids of the devices currently open, sorted.
func (svc *Service) OpenCameraIDs() []camera.ID {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]camera.ID, 0, len(svc.open))
	for id := range svc.open {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BlockAccess implements camera.Blocker by recording the enforcement call.
func (svc *Service) BlockAccess(ctx context.Context, packageName string, id camera.ID) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.blockEvents = append(svc.blockEvents, BlockEvent{PackageName: packageName, CameraID: id})
	if svc.blockErr != nil {
		return svc.blockErr
	}
	svc.logger.Debugw("blocked camera access", "camera", id, "package", packageName)
	return nil
}

// SetBlockError makes subsequent BlockAccess calls fail with err. Pass nil
// to restore success.
func (svc *Service) SetBlockError(err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.blockErr = err
}

// BlockEvents returns the enforcement calls made so far, in order.
func (svc *Service) BlockEvents() []BlockEvent {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]BlockEvent, len(svc.blockEvents))
	copy(out, svc.blockEvents)
	return out
}

// AwaitIdle returns once every queued availability callback has been
// delivered. Tests use it instead of sleeping.
func (svc *Service) AwaitIdle(ctx context.Context) error {
	for {
		svc.mu.Lock()
		idle := svc.pending == 0
		svc.mu.Unlock()
		if idle {
			return nil
		}
		if !utils.SelectContextOrWait(ctx, time.Millisecond) {
			return ctx.Err()
		}
	}
}

// Close stops the notification loop and waits for it to exit. Queued but
// undelivered callbacks are dropped.
func (svc *Service) Close() error {
	svc.mu.Lock()
	if svc.closed {
		svc.mu.Unlock()
		return nil
	}
	svc.closed = true
	svc.mu.Unlock()
	svc.cancel()
	svc.activeBackgroundWorkers.Wait()
	return nil
}

func (svc *Service) enqueue(n notification) {
	svc.mu.Lock()
	if svc.closed {
		svc.mu.Unlock()
		return
	}
	svc.pending++
	svc.mu.Unlock()

	select {
	case svc.notifyCh <- n:
	case <-svc.cancelCtx.Done():
		svc.mu.Lock()
		svc.pending--
		svc.mu.Unlock()
	}
}

func (svc *Service) deliverNotifications() {
	for {
		select {
		case <-svc.cancelCtx.Done():
			return
		default:
		}
		select {
		case <-svc.cancelCtx.Done():
			return
		case n := <-svc.notifyCh:
			svc.mu.Lock()
			observers := make([]camera.AvailabilityObserver, len(svc.observers))
			copy(observers, svc.observers)
			svc.mu.Unlock()

			// Deliver without holding the lock; observers may call back into
			// the service.
			for _, observer := range observers {
				if n.opened {
					observer.CameraOpened(svc.cancelCtx, n.id, n.packageName)
				} else {
					observer.CameraClosed(svc.cancelCtx, n.id)
				}
			}

			svc.mu.Lock()
			svc.pending--
			svc.mu.Unlock()
		}
	}
}
