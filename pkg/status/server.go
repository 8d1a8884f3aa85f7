// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server serves a Registry's statistics as JSON:
//
//	GET /stats              all components
//	GET /stats/{component}  a single component
//	GET /ws                 WebSocket, periodic snapshots of all components
type Server struct {
	registry   *Registry
	router     *mux.Router
	httpServer *http.Server
	ln         net.Listener

	upgrader       websocket.Upgrader
	streamInterval time.Duration

	stopSyn   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a Server for the given listen address, e.g., "localhost:8080".
func NewServer(listenAddress string, registry *Registry) *Server {
	s := &Server{
		registry: registry,
		router:   mux.NewRouter(),

		upgrader:       websocket.Upgrader{},
		streamInterval: defaultStreamInterval,

		stopSyn: make(chan struct{}),
	}

	s.router.HandleFunc("/stats", s.handleAll).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/{component}", s.handleComponent).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleStream).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              listenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// ServeHTTP makes the Server usable as a http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listening and serve in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status server failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{
				"status": s,
				"error":  err,
			}).Warn("Status server errored")
		}
	}()

	log.WithField("status", s).Info("Status server started")
	return nil
}

// Addr returns the bound address. It is only available after Start.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Close the Server and all WebSocket clients. Further calls have no effect.
func (s *Server) Close() (err error) {
	s.closeOnce.Do(func() {
		close(s.stopSyn)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err = s.httpServer.Shutdown(ctx)
	})
	return
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to write status response")
	}
}

// handleAll processes GET /stats requests.
func (s *Server) handleAll(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// handleComponent processes GET /stats/{component} requests.
func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["component"]

	if stats, ok := s.registry.Get(name); ok {
		s.writeJSON(w, http.StatusOK, stats)
	} else {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("unknown component %q", name),
		})
	}
}

func (s *Server) String() string {
	if s.ln != nil {
		return fmt.Sprintf("http://%v", s.ln.Addr())
	}
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}
