package realtime

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/ports"
)

const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 16 * 1024 * 1024
	DefaultCloseGrace     = 2 * time.Second

	outboundBuffer = 256
	inboundBuffer  = 256
)

var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrSendBufferFull  = errors.New("transport send buffer is full")
)

// DialerConfig tunes the websocket connection.
type DialerConfig struct {
	BetaHeader     string
	DialTimeout    time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	CloseGrace     time.Duration
}

func (c *DialerConfig) defaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = DefaultCloseGrace
	}
}

// Dialer implements ports.TransportDialer over gorilla/websocket.
type Dialer struct {
	cfg    DialerConfig
	dialer *websocket.Dialer
}

func NewDialer(cfg DialerConfig) *Dialer {
	cfg.defaults()
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
			TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

func (d *Dialer) Dial(ctx context.Context, cfg ports.TransportConfig) (ports.Transport, error) {
	wsURL, err := BuildURL(cfg.URL, cfg.Model)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		headers.Set("Authorization", "Bearer "+key)
	}
	if d.cfg.BetaHeader != "" {
		headers.Set("OpenAI-Beta", d.cfg.BetaHeader)
	}

	conn, resp, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to realtime websocket (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to realtime websocket: %w", err)
	}
	conn.SetReadLimit(d.cfg.MaxMessageSize)

	logger.Debug("realtime transport opened", "component", "realtime", "url", wsURL)

	t := &transport{
		conn:       conn,
		events:     make(chan domain.ControlMessage, inboundBuffer),
		outbound:   make(chan []byte, outboundBuffer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		writeWait:  d.cfg.WriteWait,
		closeGrace: d.cfg.CloseGrace,
		heartbeat:  cfg.Heartbeat,
	}

	var g errgroup.Group
	g.Go(t.readLoop)
	g.Go(t.writeLoop)
	go func() {
		t.setErr(g.Wait())
		close(t.events)
		_ = conn.Close()
		close(t.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-t.done:
		}
	}()

	return t, nil
}

type transport struct {
	conn *websocket.Conn

	events   chan domain.ControlMessage
	outbound chan []byte
	stop     chan struct{}
	done     chan struct{}

	writeWait  time.Duration
	closeGrace time.Duration
	heartbeat  time.Duration

	stopOnce  sync.Once
	closeOnce sync.Once
	closing   atomic.Bool

	errMu sync.Mutex
	err   error
}

func (t *transport) Send(msg domain.ControlMessage) error {
	frames, err := EncodeClientMessage(msg)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		select {
		case <-t.stop:
			return ErrTransportClosed
		default:
		}
		select {
		case t.outbound <- frame:
		case <-t.stop:
			return ErrTransportClosed
		default:
			return ErrSendBufferFull
		}
	}
	return nil
}

func (t *transport) Events() <-chan domain.ControlMessage {
	return t.events
}

func (t *transport) Wait() error {
	<-t.done
	return t.waitErr()
}

// Close sends a normal close frame and tears the connection down. Errors
// observed after Close are not reported by Wait.
func (t *transport) Close() error {
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		deadline := time.Now().Add(t.closeGrace)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.halt()
		_ = t.conn.Close()
	})
	<-t.done
	return nil
}

func (t *transport) halt() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *transport) waitErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *transport) setErr(err error) {
	if err == nil || t.closing.Load() {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *transport) readLoop() error {
	defer t.halt()

	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read server event: %w", err)
		}

		msg, err := DecodeServerMessage(payload)
		if err != nil {
			logger.Warn("dropping malformed server event", "component", "realtime", "err", err)
			continue
		}

		select {
		case t.events <- msg:
		case <-t.stop:
			return nil
		}
	}
}

func (t *transport) writeLoop() error {
	var ping <-chan time.Time
	if t.heartbeat > 0 {
		ticker := time.NewTicker(t.heartbeat)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-t.stop:
			return nil
		case frame := <-t.outbound:
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.halt()
				_ = t.conn.Close()
				return fmt.Errorf("failed to send client event: %w", err)
			}
		case <-ping:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait)); err != nil {
				t.halt()
				_ = t.conn.Close()
				return fmt.Errorf("heartbeat failed: %w", err)
			}
		}
	}
}

// BuildURL normalizes an http(s) or ws(s) endpoint to a websocket URL and
// adds the model query parameter when set.
func BuildURL(base string, model string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("realtime endpoint is not configured")
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid realtime endpoint scheme %q", parsed.Scheme)
	}

	if model = strings.TrimSpace(model); model != "" {
		query := parsed.Query()
		if query.Get("model") == "" {
			query.Set("model", model)
			parsed.RawQuery = query.Encode()
		}
	}
	return parsed.String(), nil
}
