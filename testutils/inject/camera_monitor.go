package inject

import (
	"github.com/virtkit/vdk/camera"
)

// CameraMonitor is an injected camera monitor.
type CameraMonitor struct {
	camera.Monitor
	RegisterAvailabilityObserverFunc   func(observer camera.AvailabilityObserver)
	UnregisterAvailabilityObserverFunc func(observer camera.AvailabilityObserver)
}

// RegisterAvailabilityObserver calls the injected RegisterAvailabilityObserver or the real version.
func (m *CameraMonitor) RegisterAvailabilityObserver(observer camera.AvailabilityObserver) {
	if m.RegisterAvailabilityObserverFunc == nil {
		m.Monitor.RegisterAvailabilityObserver(observer)
		return
	}
	m.RegisterAvailabilityObserverFunc(observer)
}

// UnregisterAvailabilityObserver calls the injected UnregisterAvailabilityObserver or the real version.
func (m *CameraMonitor) UnregisterAvailabilityObserver(observer camera.AvailabilityObserver) {
	if m.UnregisterAvailabilityObserverFunc == nil {
		m.Monitor.UnregisterAvailabilityObserver(observer)
		return
	}
	m.UnregisterAvailabilityObserverFunc(observer)
}
