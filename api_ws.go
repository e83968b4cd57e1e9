package main

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser dashboards connect cross-origin
		return true
	},
}

// handleSubscribe upgrades /ws/{user_id} to a WebSocket and registers
// the connection with the hub. The handler goroutine doubles as the
// read pump; when it returns the subscription is gone.
func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	sub := NewSubscriber(userID, conn)
	if err := a.hub.Subscribe(userID, sub); err != nil {
		log.Printf("websocket connection rejected for user %d: %v", userID, err)
		sub.Close()
		return
	}
	defer a.hub.Unsubscribe(userID, sub)
	defer sub.Close()

	log.Printf("subscriber connected for user %d (total %d)", userID, a.hub.SubscriberCount())

	go sub.writePump()
	sub.readPump()

	log.Printf("subscriber disconnected for user %d", userID)
}
