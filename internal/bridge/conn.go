package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

const sendBuffer = 64

// hostConn is the websocket to one host shell. It is the session's chrome
// command sink, click source and link navigator.
type hostConn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	log          *logger.Logger

	mu        sync.Mutex
	onPrimary func()
	onBack    func()
}

func newHostConn(ws *websocket.Conn, writeTimeout, pingInterval time.Duration, log *logger.Logger) *hostConn {
	return &hostConn{
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		log:          log,
	}
}

// enqueue queues a frame. A client that cannot keep up is disconnected.
func (c *hostConn) enqueue(msgType string, payload interface{}) {
	frame, err := encodeFrame(msgType, payload)
	if err != nil {
		c.log.WithField("type", msgType).WithError(err).Error("failed to encode frame")
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.log.WithField("type", msgType).Warn("send buffer full, closing connection")
		c.close()
	}
}

func (c *hostConn) sendError(code, message, request string) {
	c.enqueue(MsgError, errorFrame{Code: code, Message: message, Request: request})
}

func (c *hostConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *hostConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// writePump owns all writes to the socket.
func (c *hostConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.WithError(err).Debug("write failed")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop delivers inbound frames to handle until the socket fails or the
// connection is closed.
func (c *hostConn) readLoop(readLimit int64, handle func([]byte)) {
	pongWait := c.pingInterval + c.writeTimeout
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Debug("connection closed unexpectedly")
			}
			return
		}
		if c.closed() {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}

// =============================================================================
// hostchrome.CommandSink
// =============================================================================

func (c *hostConn) ShowPrimary(label string, enabled bool) {
	c.enqueue(MsgPrimary, primaryFrame{Visible: true, Label: label, Enabled: enabled})
}

func (c *hostConn) HidePrimary() {
	c.enqueue(MsgPrimary, primaryFrame{Visible: false})
}

func (c *hostConn) ShowBack() {
	c.enqueue(MsgBack, backFrame{Visible: true})
}

func (c *hostConn) HideBack() {
	c.enqueue(MsgBack, backFrame{Visible: false})
}

// =============================================================================
// hostchrome.EventSource
// =============================================================================

func (c *hostConn) OnPrimaryClick(fn func()) {
	c.mu.Lock()
	c.onPrimary = fn
	c.mu.Unlock()
}

func (c *hostConn) OnBackClick(fn func()) {
	c.mu.Lock()
	c.onBack = fn
	c.mu.Unlock()
}

func (c *hostConn) firePrimary() {
	c.mu.Lock()
	fn := c.onPrimary
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *hostConn) fireBack() {
	c.mu.Lock()
	fn := c.onBack
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// hostchrome.Navigator
// =============================================================================

func (c *hostConn) OpenLink(url string) error {
	if c.closed() {
		return fmt.Errorf("host connection closed")
	}
	c.enqueue(MsgOpenLink, linkFrame{URL: url})
	return nil
}
