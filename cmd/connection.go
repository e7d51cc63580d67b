// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/scopebus/pkg/config"
	"github.com/Thermoquad/scopebus/pkg/scpi"
	"github.com/Thermoquad/scopebus/pkg/scpi/mock"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// TCPConnection wraps the scope's raw SCPI socket
type TCPConnection struct {
	conn net.Conn
}

func (t *TCPConnection) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *TCPConnection) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *TCPConnection) SetReadTimeout(d time.Duration) error {
	return t.conn.SetReadDeadline(time.Now().Add(d))
}

func (t *TCPConnection) Close() error {
	return t.conn.Close()
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// SetReadTimeout makes a Read that sees no data return (0, nil)
func (s *SerialConnection) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection carries the SCPI byte stream in binary messages.
// A reader goroutine owns the socket so a read timeout leaves it usable.
type WebSocketConnection struct {
	conn     *websocket.Conn
	messages chan []byte
	readErr  error
	done     chan struct{}

	timeout   time.Duration
	buf       []byte
	bufOffset int

	closeOnce sync.Once
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:     conn,
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
		timeout:  config.DefaultTimeout,
	}
	go w.readLoop()
	return w
}

func (w *WebSocketConnection) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readErr = err
			return
		}
		// Text frames are bridge status, not instrument data
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.messages <- data:
		case <-w.done:
			w.readErr = net.ErrClosed
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.messages:
		if !ok {
			return 0, fmt.Errorf("websocket closed: %w", w.readErr)
		}
		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	case <-timer.C:
		return 0, os.ErrDeadlineExceeded
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) SetReadTimeout(d time.Duration) error {
	w.timeout = d
	return nil
}

func (w *WebSocketConnection) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// TCPDialer dials host:port
func TCPDialer(host string, port int) scpi.Dialer {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return func(ctx context.Context) (scpi.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		return &TCPConnection{conn: conn}, nil
	}
}

// SerialDialer opens a serial port
func SerialDialer(portName string, baudRate int) scpi.Dialer {
	return func(context.Context) (scpi.Conn, error) {
		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}

		port, err := serial.Open(portName, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
		}

		return &SerialConnection{port: port}, nil
	}
}

// WebSocketDialer connects with HTTP Basic auth
func WebSocketDialer(wsURL, username, password string, skipSSLVerify bool) (scpi.Dialer, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// Configure TLS for wss://
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	return func(ctx context.Context) (scpi.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("WebSocket connection failed: %w", err)
		}
		return newWebSocketConnection(conn), nil
	}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("SCOPEBUS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// demoScope is the simulated scope behind --mock: UART text on C1 and an
// I2C register write on C2 (SCL) and C3 (SDA), all at 1 MSa/s
func demoScope() *mock.Scope {
	const rate = 1e6
	s := mock.NewScope()
	s.SetSampleRate(rate)
	s.SetChannel(1, 1, 0, mock.Codes8(mock.UART([]byte("scopebus\n"), 115200, rate), 1, 0))
	scl, sda := mock.I2CWrite(0x50, []byte{0x00, 0x42}, 100e3, rate)
	s.SetChannel(2, 1, 0, mock.Codes8(scl, 1, 0))
	s.SetChannel(3, 1, 0, mock.Codes8(sda, 1, 0))
	s.SetChannel(4, 1, 0, mock.Codes8(make([]float64, len(scl)), 1, 0))
	return s
}

// selectDialer picks the link from the profile's connection section.
// Precedence: mock, WebSocket, serial, TCP.
func selectDialer(c config.Connection, mockScope bool) (scpi.Dialer, string, error) {
	switch {
	case mockScope:
		return demoScope().Dial, "Mock scope", nil

	case c.URL != "":
		password := ""
		if c.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		dial, err := WebSocketDialer(c.URL, c.Username, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return dial, fmt.Sprintf("WebSocket: %s", c.URL), nil

	case c.Serial != "":
		return SerialDialer(c.Serial, c.Baud), fmt.Sprintf("Serial: %s @ %d baud", c.Serial, c.Baud), nil

	case c.Host != "":
		return TCPDialer(c.Host, c.Port), fmt.Sprintf("TCP: %s:%d", c.Host, c.Port), nil
	}

	return nil, "", fmt.Errorf("one of --host, --port, --url or --mock must be specified")
}

// OpenChannel opens the SCPI channel described by the loaded profile
func OpenChannel(ctx context.Context) (*scpi.Channel, string, error) {
	dial, connInfo, err := selectDialer(profile.Connection, useMock)
	if err != nil {
		return nil, "", err
	}

	ch := scpi.NewChannel(dial, scpi.WithTimeout(profile.Connection.TimeoutDuration()))
	if err := ch.Open(ctx); err != nil {
		return nil, "", err
	}
	return ch, connInfo, nil
}
