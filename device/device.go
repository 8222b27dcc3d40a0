// Package device speaks the controller's line-oriented serial protocol:
// ASCII commands terminated by a line feed, echoed back by the device and
// followed by a status line. Exactly one command is in flight at a time;
// Send blocks until the expected response arrives, the response diverges,
// or the timeout elapses.
package device

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	serial "go.bug.st/serial.v1"
)

const (
	baudRate = 115200

	// sendTimeout bounds one command/response exchange. There is no
	// other cancellation primitive; a caller aborting a download just
	// stops sending chunks and clears the device afterwards.
	sendTimeout = 2 * time.Second

	readBufBytes = 256
)

var (
	ErrAlreadyOpen      = errors.New("serial link already open")
	ErrNotOpen          = errors.New("serial link not open")
	ErrPortUnavailable  = errors.New("serial port unavailable")
	ErrPermissionDenied = errors.New("serial port permission denied")
	ErrTimeout          = errors.New("timed out waiting for device response")
)

// MismatchError reports a device response that diverged from the expected
// text. Received carries the device's literal output so it can be shown to
// the user verbatim.
type MismatchError struct {
	Expected string
	Received string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("unexpected device response %q (want %q)", e.Received, e.Expected)
}

// Link is a serial connection to one controller. It is single-owner: the
// blocking Send contract is the only serialization, so concurrent callers
// must coordinate externally.
type Link struct {
	portName string
	port     serial.Port
	reads    chan []byte
	timeout  time.Duration
}

// ListPorts enumerates the serial endpoints available on this host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Open acquires the named serial endpoint. Distinct failures: the link is
// already open, the port does not exist or is busy, or access was denied.
// Open never retries.
func (l *Link) Open(portName string) error {
	if l.port != nil {
		return ErrAlreadyOpen
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		if pe, ok := err.(*serial.PortError); ok {
			switch pe.Code() {
			case serial.PortNotFound, serial.PortBusy, serial.InvalidSerialPort:
				return errors.Wrap(ErrPortUnavailable, portName)
			case serial.PermissionDenied:
				return errors.Wrap(ErrPermissionDenied, portName)
			}
		}
		return errors.Wrapf(err, "opening %v", portName)
	}
	port.ResetInputBuffer()

	l.portName = portName
	l.port = port
	l.timeout = sendTimeout
	l.reads = make(chan []byte, 16)
	go l.readLoop(port, l.reads)
	return nil
}

// readLoop feeds everything the device writes into the channel until the
// port is closed. One loop per Open; Send consumes from the channel so it
// can block with a deadline.
func (l *Link) readLoop(port serial.Port, reads chan []byte) {
	defer close(reads)
	for {
		buf := make([]byte, readBufBytes)
		n, err := port.Read(buf)
		if n > 0 {
			reads <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}

// Close releases the endpoint. Safe to call after any failure; the caller
// can always let go of the port deterministically.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// Send writes one command line and blocks until the accumulated response
// matches the expected text at its head (nil), diverges from it
// (*MismatchError with the device's literal output), or the timeout
// elapses (ErrTimeout). The link stays open regardless of outcome.
func (l *Link) Send(cmd string, expect string) error {
	if l.port == nil {
		return ErrNotOpen
	}

	// drop bytes left over from an earlier exchange: a reply landing
	// after its deadline, or trailing output after a mismatch, must not
	// corrupt this one
drain:
	for {
		select {
		case _, ok := <-l.reads:
			if !ok {
				return ErrNotOpen
			}
		default:
			break drain
		}
	}

	if _, err := l.port.Write([]byte(cmd)); err != nil {
		return errors.Wrapf(err, "writing to %v", l.portName)
	}

	var received strings.Builder
	deadline := time.After(l.timeout)
	for {
		got := received.String()
		if strings.HasPrefix(got, expect) {
			return nil
		}
		if !strings.HasPrefix(expect, got) {
			return &MismatchError{Expected: expect, Received: got}
		}
		select {
		case chunk, ok := <-l.reads:
			if !ok {
				return ErrNotOpen
			}
			received.Write(chunk)
		case <-deadline:
			return errors.Wrapf(ErrTimeout, "command %q", strings.TrimSuffix(cmd, "\n"))
		}
	}
}

// Clear erases all jingle data on the device.
func (l *Link) Clear() error {
	cmd := "jingle clear\n"
	return l.Send(cmd, cmd+"\rJingle data cleared successfully.\n\r")
}

// TransferChunk writes a bounded slice of an EEPROM image at the given
// byte offset. Callers iterate over the whole image and abort on the first
// failure; the device does not roll back partial writes.
func (l *Link) TransferChunk(offset uint32, data []byte) error {
	cmd := fmt.Sprintf("jingle download %v %v\n", offset, hex.EncodeToString(data))
	return l.Send(cmd, cmd+"\rJingle data downloaded successfully.\n\r")
}

// Play starts playback of the jingle in the given slot.
func (l *Link) Play(slot int) error {
	cmd := fmt.Sprintf("jingle play %v\n", slot)
	return l.Send(cmd, cmd+"\rJingle play started successfully.\n\r")
}
