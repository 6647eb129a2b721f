package models

type EventType string

const (
	EventConnected EventType = "connected"
	EventHeartbeat EventType = "heartbeat"
	EventProgress  EventType = "progress"
	EventLog       EventType = "log"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Progress carries the counters attached to progress and complete events.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Event is one structured message pushed to a progress subscriber. The
// embedded *Progress flattens into the JSON object so the wire shape stays
// flat: {"type":"progress","status":"processing","current":1,...}.
type Event struct {
	Type    EventType `json:"type"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	*Progress
}

func ConnectedEvent() Event {
	return Event{Type: EventConnected, Status: "connected"}
}

func HeartbeatEvent() Event {
	return Event{Type: EventHeartbeat}
}

func ProgressEvent(status JobStatus, p Progress) Event {
	return Event{Type: EventProgress, Status: string(status), Progress: &p}
}

func LogEvent(message string) Event {
	return Event{Type: EventLog, Message: message}
}

func CompleteEvent(status JobStatus, p Progress) Event {
	return Event{Type: EventComplete, Status: string(status), Progress: &p}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Status: string(StatusFailed), Error: message}
}
