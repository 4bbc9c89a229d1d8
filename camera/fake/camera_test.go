package fake

import (
	"context"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/virtkit/vdk/camera"
)

// recordingObserver records availability callbacks in delivery order.
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) CameraOpened(ctx context.Context, id camera.ID, packageName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "open:"+string(id)+":"+packageName)
}

func (o *recordingObserver) CameraClosed(ctx context.Context, id camera.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "close:"+string(id))
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.events))
	copy(out, o.events)
	return out
}

func TestServiceNotifications(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx := context.Background()
	svc := New(logger)
	defer func() {
		test.That(t, svc.Close(), test.ShouldBeNil)
	}()

	observer := &recordingObserver{}
	svc.RegisterAvailabilityObserver(observer)

	svc.OpenCamera("0", "pkg.a")
	svc.OpenCamera("1", "pkg.b")
	svc.CloseCamera("0")
	test.That(t, svc.AwaitIdle(ctx), test.ShouldBeNil)

	test.That(t, observer.Events(), test.ShouldResemble, []string{
		"open:0:pkg.a",
		"open:1:pkg.b",
		"close:0",
	})
	test.That(t, svc.OpenCameraIDs(), test.ShouldResemble, []camera.ID{"1"})
}

func TestServiceObserverRegistration(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx := context.Background()
	svc := New(logger)
	defer func() {
		test.That(t, svc.Close(), test.ShouldBeNil)
	}()

	first := &recordingObserver{}
	second := &recordingObserver{}
	svc.RegisterAvailabilityObserver(first)
	svc.RegisterAvailabilityObserver(second)

	svc.OpenCamera("0", "pkg.a")
	test.That(t, svc.AwaitIdle(ctx), test.ShouldBeNil)
	test.That(t, first.Events(), test.ShouldHaveLength, 1)
	test.That(t, second.Events(), test.ShouldHaveLength, 1)

	// Unregistering stops future deliveries for that observer only.
	svc.UnregisterAvailabilityObserver(first)
	svc.CloseCamera("0")
	test.That(t, svc.AwaitIdle(ctx), test.ShouldBeNil)
	test.That(t, first.Events(), test.ShouldHaveLength, 1)
	test.That(t, second.Events(), test.ShouldHaveLength, 2)

	// Unregistering an observer that was never registered is a no-op.
	svc.UnregisterAvailabilityObserver(&recordingObserver{})
	svc.UnregisterAvailabilityObserver(first)
}

func TestServiceBlocking(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx := context.Background()
	svc := New(logger)
	defer func() {
		test.That(t, svc.Close(), test.ShouldBeNil)
	}()

	test.That(t, svc.BlockAccess(ctx, "pkg.a", "0"), test.ShouldBeNil)

	injectedErr := errors.New("injection failed")
	svc.SetBlockError(injectedErr)
	test.That(t, svc.BlockAccess(ctx, "pkg.b", "1"), test.ShouldBeError, injectedErr)

	svc.SetBlockError(nil)
	test.That(t, svc.BlockAccess(ctx, "pkg.a", "0"), test.ShouldBeNil)

	// Attempts are recorded whether or not they succeeded.
	test.That(t, svc.BlockEvents(), test.ShouldResemble, []BlockEvent{
		{PackageName: "pkg.a", CameraID: "0"},
		{PackageName: "pkg.b", CameraID: "1"},
		{PackageName: "pkg.a", CameraID: "0"},
	})
}

func TestServiceClose(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx := context.Background()
	svc := New(logger)

	observer := &recordingObserver{}
	svc.RegisterAvailabilityObserver(observer)
	svc.OpenCamera("0", "pkg.a")
	test.That(t, svc.AwaitIdle(ctx), test.ShouldBeNil)

	test.That(t, svc.Close(), test.ShouldBeNil)
	test.That(t, svc.Close(), test.ShouldBeNil)

	// Events after close are dropped, not delivered.
	svc.OpenCamera("1", "pkg.b")
	test.That(t, svc.AwaitIdle(ctx), test.ShouldBeNil)
	test.That(t, observer.Events(), test.ShouldResemble, []string{"open:0:pkg.a"})
}
