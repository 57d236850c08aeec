package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Reviewer message types
const (
	MsgSessionCompleted MessageType = "session_completed"
	MsgReportReady      MessageType = "report_ready"
)

// Subject message types
const (
	MsgInterviewCompleted MessageType = "interview_completed"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections for reviewers and interview subjects
type Hub struct {
	reviewerConns map[*Connection]bool
	sessionConns  map[string]map[*Connection]bool // sessionID -> conns

	mu     sync.RWMutex
	logger *slog.Logger

	// Channels for coordination
	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
}

// Connection represents a WebSocket connection
type Connection struct {
	SessionID  string // Empty for reviewer connections
	IsReviewer bool
	Send       chan []byte
	Hub        *Hub
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	ToReviewers bool
	SessionID   string
	Message     *Message
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		reviewerConns: make(map[*Connection]bool),
		sessionConns:  make(map[string]map[*Connection]bool),
		logger:        logger,
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		broadcast:     make(chan *BroadcastMessage, 256),
		done:          make(chan struct{}),
	}
	go h.run()
	return h
}

// Close stops the hub loop.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case conn := <-h.register:
			h.mu.Lock()
			if conn.IsReviewer {
				h.reviewerConns[conn] = true
				h.logger.Info("reviewer connected")
			} else {
				if h.sessionConns[conn.SessionID] == nil {
					h.sessionConns[conn.SessionID] = make(map[*Connection]bool)
				}
				h.sessionConns[conn.SessionID][conn] = true
				h.logger.Info("subject connected", "session_id", conn.SessionID)
			}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if conn.IsReviewer {
				if h.reviewerConns[conn] {
					delete(h.reviewerConns, conn)
					close(conn.Send)
					h.logger.Info("reviewer disconnected")
				}
			} else if conns, ok := h.sessionConns[conn.SessionID]; ok && conns[conn] {
				delete(conns, conn)
				if len(conns) == 0 {
					delete(h.sessionConns, conn.SessionID)
				}
				close(conn.Send)
				h.logger.Info("subject disconnected", "session_id", conn.SessionID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, _ := json.Marshal(msg.Message)
			h.mu.RLock()
			targets := h.sessionConns[msg.SessionID]
			if msg.ToReviewers {
				targets = h.reviewerConns
			}
			for conn := range targets {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection. It is a no-op once the hub is closed.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a connection. It is a no-op once the hub is closed.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BroadcastToReviewers sends a message to every connected reviewer (implements service.Broadcaster)
func (h *Hub) BroadcastToReviewers(msgType string, payload interface{}) {
	h.enqueue(&BroadcastMessage{ToReviewers: true, Message: newMessage(msgType, payload)})
}

// BroadcastToSession sends a message to the subject of one interview (implements service.Broadcaster)
func (h *Hub) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	h.enqueue(&BroadcastMessage{SessionID: sessionID, Message: newMessage(msgType, payload)})
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message", "type", msg.Message.Type)
	}
}

func newMessage(msgType string, payload interface{}) *Message {
	data, _ := json.Marshal(payload)
	return &Message{
		Type:    MessageType(msgType),
		Payload: data,
	}
}
