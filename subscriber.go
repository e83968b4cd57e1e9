package main

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roadsense/roadhub/store"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 32
)

var (
	// ErrSubscriberStalled means the peer is not draining its buffer.
	ErrSubscriberStalled = errors.New("subscriber send buffer full")
	// ErrSubscriberClosed means the connection is already gone.
	ErrSubscriberClosed = errors.New("subscriber closed")
)

// Subscriber implements Channel over one WebSocket connection. All
// writes go through a single writer goroutine; Send only enqueues, so
// the fan-out path never waits on a slow peer.
type Subscriber struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewSubscriber(userID int64, conn *websocket.Conn) *Subscriber {
	return &Subscriber{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues one record for delivery. It fails fast when the buffer
// is full or the connection is closed; the hub treats either as a dead
// subscriber.
func (s *Subscriber) Send(rec *store.ProcessedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrSubscriberClosed
	case s.send <- payload:
		return nil
	default:
		return ErrSubscriberStalled
	}
}

// Close tears down the connection. Safe to call from the read pump, the
// fan-out path and hub shutdown concurrently.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// writePump owns the connection's write side: queued records plus
// periodic pings, each under a write deadline so a dead peer cannot
// hold the goroutine.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.Close()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readPump blocks until the peer disconnects. Inbound frames are not
// interpreted, they only prove the peer is alive.
func (s *Subscriber) readPump() {
	defer s.Close()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error for user %d: %v", s.userID, err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
