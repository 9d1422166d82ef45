// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package burner

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Transport owns the byte-level link to the target. It has no protocol
// knowledge and no retry logic; all retry policy lives above this layer.
// Read must return (0, nil) when the read timeout elapses with no data.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	// SetBaud renegotiates the link speed, where the link supports it.
	SetBaud(baud int) error
	// SetResetLine asserts or releases the hardware reset strap, where the
	// link exposes one.
	SetResetLine(asserted bool) error
	// Flush drains stale bytes from both directions.
	Flush() error
}

// Open opens a transport for port: a ws:// or wss:// URL opens a remote
// serial bridge, anything else is treated as a local serial port device.
func Open(port string, baud int) (Transport, error) {
	if strings.HasPrefix(port, "ws://") || strings.HasPrefix(port, "wss://") {
		return OpenWebSocket(port)
	}
	return OpenSerial(port, baud)
}

// serialTransport wraps a local serial port.
type serialTransport struct {
	port serial.Port
}

// OpenSerial opens a local serial port at the given baud rate.
func OpenSerial(portName string, baud int) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, portName, err)
	}

	return &serialTransport{port: port}, nil
}

func (s *serialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialTransport) Close() error                { return s.port.Close() }

func (s *serialTransport) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

func (s *serialTransport) SetBaud(baud int) error {
	return s.port.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// SetResetLine drives the DTR/RTS strap wired to the chip reset on SiFli dev
// boards. Asserting holds the chip in reset; releasing lets it boot.
func (s *serialTransport) SetResetLine(asserted bool) error {
	if err := s.port.SetRTS(asserted); err != nil {
		return err
	}
	return s.port.SetDTR(!asserted)
}

func (s *serialTransport) Flush() error {
	if err := s.port.ResetInputBuffer(); err != nil {
		return err
	}
	return s.port.ResetOutputBuffer()
}

// wsTransport adapts a WebSocket serial bridge to the Transport interface.
// Binary messages carry raw UART bytes; non-binary messages are skipped.
type wsTransport struct {
	conn        *websocket.Conn
	buf         []byte
	bufOffset   int
	readTimeout time.Duration
	closed      bool
}

// OpenWebSocket connects to a remote serial bridge at wsURL.
func OpenWebSocket(wsURL string) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s (HTTP %d): %v", ErrPortUnavailable, wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, wsURL, err)
	}

	return &wsTransport{conn: conn}, nil
}

func (w *wsTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("connection closed")
	}

	// Return buffered data first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	if w.readTimeout > 0 {
		if err := w.conn.SetReadDeadline(time.Now().Add(w.readTimeout)); err != nil {
			return 0, err
		}
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// Deadline elapsed: report a timeout the same way a serial
				// port does, so the codec treats both links identically.
				return 0, nil
			}
			w.closed = true
			return 0, err
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *wsTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	w.closed = true
	return w.conn.Close()
}

func (w *wsTransport) SetReadTimeout(t time.Duration) error {
	w.readTimeout = t
	return nil
}

// SetBaud is a no-op: the bridge owns the physical port configuration.
func (w *wsTransport) SetBaud(int) error { return nil }

// SetResetLine is a no-op: the bridge does not expose modem control lines.
func (w *wsTransport) SetResetLine(bool) error { return nil }

func (w *wsTransport) Flush() error {
	w.buf = nil
	w.bufOffset = 0
	return nil
}
