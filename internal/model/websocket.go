package model

// WebSocket message types
const (
	WSMessageTypeConnected     = "connected"
	WSMessageTypePing          = "ping"
	WSMessageTypePong          = "pong"
	WSMessageTypeSubscribe     = "subscribe"
	WSMessageTypeSubscribed    = "subscribed"
	WSMessageTypeUnsubscribe   = "unsubscribe"
	WSMessageTypeUnsubscribed  = "unsubscribed"
	WSMessageTypeError         = "error"
	WSMessageTypeTaskProgress  = "task.progress"
	WSMessageTypeTaskCompleted = "task.completed"
	WSMessageTypeTaskFailed    = "task.failed"
	WSMessageTypeTaskCancelled = "task.cancelled"
	WSMessageTypeMessageNew    = "message.new"
	WSMessageTypeSystemNotice  = "system.notice"
)

// WSChannelTaskProgress is the only subscribable channel
const WSChannelTaskProgress = "task.progress"

// WSMessage is a client to hub frame
type WSMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}

// WSReply is a hub to client control frame
type WSReply struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event is the hub to client notification envelope
type Event struct {
	Type           string      `json:"type"`
	TaskID         string      `json:"taskId,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Data           interface{} `json:"data"`
}

// TaskProgressData is the payload of task.progress
type TaskProgressData struct {
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
}

// TaskCompletedData is the payload of task.completed
type TaskCompletedData struct {
	Result interface{} `json:"result"`
}

// TaskFailedData is the payload of task.failed
type TaskFailedData struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// MessageNewData is the payload of message.new
type MessageNewData struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// NoticeRequest is the body of POST /api/system/notices
type NoticeRequest struct {
	Level   string `json:"level" validate:"omitempty,oneof=info warning critical"`
	Message string `json:"message" validate:"required,max=1000"`
}
