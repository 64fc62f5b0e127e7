package printer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// DefaultBaud is the rate most thermal printers ship with
const DefaultBaud = 9600

// SerialListener reads ESC/POS bytes from a serial port, typically one end
// of a virtual null-modem pair the host application prints to.
type SerialListener struct {
	device string
	baud   int
	sink   Sink
	pool   *ClientPool
	logger *zap.Logger

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool
	wg     sync.WaitGroup
}

// NewSerialListener creates a listener for device
func NewSerialListener(device string, baud int, sink Sink, pool *ClientPool, logger *zap.Logger) *SerialListener {
	if baud == 0 {
		baud = DefaultBaud
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialListener{
		device: device,
		baud:   baud,
		sink:   sink,
		pool:   pool,
		logger: logger.With(zap.String("component", "serial_listener"), zap.String("device", device)),
	}
}

// Start opens the port and begins reading
func (s *SerialListener) Start() error {
	config := &serial.Config{
		Name:        s.device,
		Baud:        s.baud,
		ReadTimeout: 500 * time.Millisecond,
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	return s.start(port)
}

// start reads from an already opened port
func (s *SerialListener) start(port io.ReadWriteCloser) error {
	s.mu.Lock()
	s.port = port
	s.closed = false
	s.mu.Unlock()

	s.logger.Info("Reading ESC/POS from serial port", zap.Int("baud", s.baud))

	s.wg.Add(1)
	go s.readLoop(port)

	return nil
}

// Close closes the port and waits for the read loop
func (s *SerialListener) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.closed = true
	s.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	s.wg.Wait()

	return err
}

func (s *SerialListener) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *SerialListener) readLoop(port io.ReadWriteCloser) {
	defer s.wg.Done()

	id := s.pool.Add("serial", s.device, port)
	defer s.pool.Remove(id)

	buf := make([]byte, ReadBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			s.pool.Record(id, n)
			if _, qerr := s.sink.Enqueue("serial:"+s.device, data); qerr != nil {
				s.logger.Warn("Dropping received bytes", zap.Error(qerr))
				return
			}
		}

		if err != nil {
			// a read timeout surfaces as io.EOF with no data
			if errors.Is(err, io.EOF) && !s.isClosed() {
				continue
			}
			if !s.isClosed() {
				s.logger.Error("Serial read failed", zap.Error(err))
			}
			return
		}
	}
}

// ScanSerialPorts lists serial devices that could carry printer traffic
func ScanSerialPorts() []string {
	switch runtime.GOOS {
	case "darwin":
		return scanMacOSPorts()
	case "linux":
		return scanLinuxPorts()
	case "windows":
		return scanWindowsPorts()
	default:
		return nil
	}
}

func scanMacOSPorts() []string {
	var ports []string

	patterns := []string{
		"/dev/cu.*",
		"/dev/tty.*",
	}

	// Skip Bluetooth and other non-printer devices
	skipPatterns := []string{
		"Bluetooth",
		"debug-console",
		"KeySerial",
		"Modem",
	}

	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, match := range matches {
			if !containsAny(match, skipPatterns) {
				ports = append(ports, match)
			}
		}
	}

	return ports
}

func scanLinuxPorts() []string {
	var ports []string

	patterns := []string{
		"/dev/ttyUSB*",
		"/dev/ttyACM*",
		"/dev/ttyS*",
		"/dev/pts/[0-9]*",
	}

	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		ports = append(ports, matches...)
	}

	return ports
}

func scanWindowsPorts() []string {
	var ports []string

	for i := 1; i <= 256; i++ {
		ports = append(ports, fmt.Sprintf("COM%d", i))
	}

	return ports
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
