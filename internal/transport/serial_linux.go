//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// termiosPort is a raw-fd serial port opened directly via unix syscalls
// (rather than through tarm/serial), so the fd can be put in O_NONBLOCK mode
// and Read never blocks indefinitely regardless of what a particular
// tty/USB-serial driver does with VTIME, grounded on the teacher's
// internal/socketcan/device.go raw-fd handling.
type termiosPort struct {
	fd int
}

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	2000000: unix.B2000000,
}

func openPort(name string, baud int) (Port, error) {
	rate, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("transport: unsupported baud rate %d", baud)
	}
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: get termios: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Ispeed = rate
	t.Ospeed = rate
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0 // non-blocking read, enforced again via O_NONBLOCK
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: set termios: %w", err)
	}
	return &termiosPort{fd: fd}, nil
}

func (p *termiosPort) Read(b []byte) (int, error) {
	n, err := unix.Read(p.fd, b)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return 0, nil
	}
	return n, err
}

func (p *termiosPort) Write(b []byte) (int, error) {
	return unix.Write(p.fd, b)
}

func (p *termiosPort) Close() error {
	return unix.Close(p.fd)
}
