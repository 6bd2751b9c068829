package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"signal-sessions/codec"
	"signal-sessions/common"
	"signal-sessions/configs"
	"signal-sessions/registry"
	"signal-sessions/relay"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	ctx       context.Context
	cancelCtx context.CancelFunc

	registry       *registry.Registry
	mailbox        relay.Mailbox
	connectedUsers map[string]*conn
	mutex          *sync.Mutex
	logger         *logrus.Logger

	// WebSocket upgrader settings
	upgrader *websocket.Upgrader
}

// conn serializes writes to one websocket.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func NewServer(ctx context.Context, reg *registry.Registry, mailbox relay.Mailbox, logger *logrus.Logger) *Server {
	ctx, cancelCtx := context.WithCancel(ctx)
	return &Server{
		ctx:            ctx,
		cancelCtx:      cancelCtx,
		registry:       reg,
		mailbox:        mailbox,
		connectedUsers: make(map[string]*conn),
		mutex:          &sync.Mutex{},
		logger:         logger,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/register", s.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/prekey/{userId}", s.HandleGetPreKey).Methods(http.MethodGet)
	r.HandleFunc("/session", s.HandleSession).Methods(http.MethodPost)
	r.HandleFunc("/send", s.HandleSend).Methods(http.MethodPost)
	r.HandleFunc("/receive", s.HandleReceive).Methods(http.MethodPost)
	r.HandleFunc("/fingerprint/{userId}", s.HandleFingerprint).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc(configs.WebSocketPath, s.HandleConnections)
	return r
}

func (s *Server) Close() {
	s.cancelCtx()
	// Close all WebSocket connections
	s.mutex.Lock()
	for _, c := range s.connectedUsers {
		c.ws.Close()
	}
	s.mutex.Unlock()
	if err := s.mailbox.Close(); err != nil {
		s.logger.Errorf("Error closing mailbox: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, common.ErrPoolExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, common.ErrBadInput),
		errors.Is(err, common.ErrSignatureVerification),
		errors.Is(err, common.ErrHandshake),
		errors.Is(err, common.ErrNoSession),
		errors.Is(err, common.ErrDecryption):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorf("Internal error: %v", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrBadInput, err)
	}
	return nil
}

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	bundle, err := s.registry.Register(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Infof("User %s registered", req.UserID)
	s.writeJSON(w, http.StatusOK, BundleResponse{UserID: req.UserID, PreKeyBundle: codec.Serialize(bundle)})
}

func (s *Server) HandleGetPreKey(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	bundle, err := s.registry.Bundle(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Infof("Pre-key bundle issued for user %s", userID)
	s.writeJSON(w, http.StatusOK, BundleResponse{UserID: userID, PreKeyBundle: codec.Serialize(bundle)})
}

func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	bundle, err := codec.Deserialize(req.PreKeyBundle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.EstablishSession(r.Context(), req.UserID, req.RecipientID, bundle); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Infof("Session established from %s to %s", req.UserID, req.RecipientID)
	s.writeJSON(w, http.StatusOK, SessionResponse{Success: true})
}

func (s *Server) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	ciphertext, err := s.registry.Send(r.Context(), req.SenderID, req.RecipientID, []byte(req.Message))
	if err != nil {
		s.writeError(w, err)
		return
	}

	env := common.NewEnvelope(req.SenderID, req.RecipientID, ciphertext)
	delivered, err := s.handleMessage(r.Context(), env)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SendResponse{ID: env.ID, EncryptedMessage: ciphertext, Delivered: delivered})
}

func (s *Server) HandleReceive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	plaintext, err := s.registry.Receive(r.Context(), req.RecipientID, req.SenderID, req.EncryptedMessage)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ReceiveResponse{Message: string(plaintext)})
}

func (s *Server) HandleFingerprint(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	fp, err := s.registry.Fingerprint(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FingerprintResponse{UserID: userID, Fingerprint: fp})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.registry.Health()
	resp := HealthResponse{Status: "ok", Users: h.Users, PoolErrors: h.PoolErrors}
	status := http.StatusOK
	if !h.OK() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// Handle incoming WebSocket connections
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, fmt.Errorf("%w: no userId provided in the query", common.ErrBadInput))
		return
	}
	if _, err := s.registry.Get(userID); err != nil {
		s.writeError(w, err)
		return
	}

	// Upgrade HTTP request to WebSocket
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("Error upgrading to WebSocket: %v", err)
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	// A concurrent send lands either in the drained queue or on c
	s.mutex.Lock()
	if old, ok := s.connectedUsers[userID]; ok {
		old.ws.Close()
	}
	s.connectedUsers[userID] = c
	s.retrieveQueuedMessages(userID, c)
	s.mutex.Unlock()
	s.logger.Infof("User %s connected", userID)

	// Incoming frames are ignored; the read loop only detects disconnects
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Errorf("Error reading message from user %s: %v", userID, err)
			}
			break
		}
	}

	// Remove user from connectedUsers map when they disconnect
	s.mutex.Lock()
	if s.connectedUsers[userID] == c {
		delete(s.connectedUsers, userID)
	}
	s.mutex.Unlock()
	s.logger.Infof("User %s disconnected", userID)
}

// handleMessage pushes env to a connected recipient, otherwise queues it in the mailbox.
func (s *Server) handleMessage(ctx context.Context, env common.Envelope) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if c, online := s.connectedUsers[env.RecipientID]; online {
		err := c.writeJSON(env)
		if err == nil {
			return true, nil
		}
		s.logger.Errorf("Error sending message to user %s, queueing instead: %v", env.RecipientID, err)
	}

	if err := s.mailbox.Push(ctx, env); err != nil {
		return false, fmt.Errorf("queueing message from %s to %s: %w", env.SenderID, env.RecipientID, err)
	}
	return false, nil
}

// Retrieve queued messages for a user when they reconnect. Caller holds s.mutex.
func (s *Server) retrieveQueuedMessages(userID string, c *conn) {
	envelopes, err := s.mailbox.Drain(s.ctx, userID)
	if err != nil {
		s.logger.Errorf("Error retrieving queued messages for %s: %v", userID, err)
	}

	for i, env := range envelopes {
		if err := c.writeJSON(env); err != nil {
			s.logger.Errorf("Error sending queued message to %s: %v", userID, err)
			// put the undelivered tail back
			for _, rest := range envelopes[i:] {
				if err := s.mailbox.Push(s.ctx, rest); err != nil {
					s.logger.Errorf("Error requeueing message %s: %v", rest.ID, err)
				}
			}
			return
		}
	}
}
