// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package status

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"
)

// defaultStreamInterval between two snapshots pushed to a WebSocket client.
const defaultStreamInterval = time.Second

// handleStream processes GET /ws requests. The connection is upgraded to a
// WebSocket and receives a JSON snapshot of all components periodically until
// either side closes it.
func (s *Server) handleStream(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}
	defer func() { _ = conn.Close() }()

	logger := log.WithField("status client", conn.RemoteAddr().String())
	logger.Debug("Status client connected")

	// Incoming messages are discarded; reading is required to notice a close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.registry.Snapshot()); err != nil {
			logger.WithError(err).Debug("Writing status snapshot errored")
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			logger.Debug("Status client disconnected")
			return
		case <-s.stopSyn:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
			return
		}
	}
}
