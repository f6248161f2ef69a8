package serialmux

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for dev mode and tests. Reads come
// from a pipe fed with fixture lines; writes are captured for inspection.
type MockSerialPort struct {
	io.Reader

	mu     sync.Mutex
	writes bytes.Buffer
	closed bool
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns everything written to the mock port so far.
func (m *MockSerialPort) Writes() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes.String()
}

// NewMockSerialMux creates a SerialMux instance backed by a mock serial port
// that replays the given fixture lines at the given interval, simulating a
// node emitting telemetry.
func NewMockSerialMux(fixtures [][]byte, interval time.Duration) (*SerialMux[*MockSerialPort], *MockSerialPort) {
	r, w := io.Pipe()
	mockPort := &MockSerialPort{Reader: r}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		i := 0
		for range ticker.C {
			if len(fixtures) == 0 {
				return
			}
			line := fixtures[i%len(fixtures)]
			if _, err := w.Write(append(line, '\n')); err != nil {
				return
			}
			i++
		}
	}()

	return NewSerialMux(mockPort), mockPort
}
