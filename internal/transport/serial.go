package transport

import (
	"sync"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability, grounded on the teacher's
// internal/serial/port.go.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Serial is a Transport backed by a real serial port.
type Serial struct {
	mu   sync.Mutex
	port Port
}

// OpenSerial opens name at baud and configures a finite read timeout so Read
// honors the "never blocks indefinitely" transport contract. On Linux
// (serial_linux.go) the port is opened via raw termios/unix syscalls and put
// in non-blocking mode directly; elsewhere (serial_other.go) it falls back to
// tarm/serial's own ReadTimeout.
func OpenSerial(name string, baud int) (*Serial, error) {
	port, err := openPort(name, baud)
	if err != nil {
		return nil, err
	}
	return &Serial{port: port}, nil
}

// NewSerialFromPort wraps an already-open Port, for tests.
func NewSerialFromPort(p Port) *Serial {
	return &Serial{port: p}
}

// Start is a no-op: a Serial is ready to use as soon as OpenSerial returns.
func (s *Serial) Start() error { return nil }

// Stop is a no-op: Serial has no background goroutine to tear down; Close
// releases the underlying port.
func (s *Serial) Stop() {}

func (s *Serial) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Write(p)
}

// DropAll discards any bytes currently sitting unread in the driver by
// reading with a short timeout until a read yields nothing.
func (s *Serial) DropAll() {
	buf := make([]byte, 4096)
	for {
		n, err := s.port.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}

func (s *Serial) Close() error {
	return s.port.Close()
}

var _ Transport = (*Serial)(nil)

// openTarmPort opens name through tarm/serial with defaultReadTimeout and
// returns it as a Port; serial_other.go uses it on non-Linux platforms.
func openTarmPort(name string, baud int) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: defaultReadTimeout}
	return serial.OpenPort(cfg)
}
