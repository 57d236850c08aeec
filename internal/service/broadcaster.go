package service

// Event types pushed over the WebSocket feed
const (
	EventSessionCompleted   = "session_completed"
	EventReportReady        = "report_ready"
	EventInterviewCompleted = "interview_completed"
)

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToReviewers(msgType string, payload interface{})
	BroadcastToSession(sessionID string, msgType string, payload interface{})
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToReviewers(string, interface{}) {}
func (noopBroadcaster) BroadcastToSession(string, string, interface{}) {}
