package domain

// Outbound event names, as seen by clients.
const (
	EventUserJoined     = "user:joined"
	EventUserLeft       = "user:left"
	EventUserList       = "user:list"
	EventRoomJoined     = "room:joined"
	EventRoomLeft       = "room:left"
	EventRoomUsers      = "room:users"
	EventMessageReceive = "message:receive"
	EventError          = "error"
)

// Inbound event names.
const (
	EventRoomCreate  = "room:create"
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventMessageSend = "message:send"
)

const MissingUsernameMessage = "Username is required"

type Target int

const (
	TargetAll Target = iota
	TargetRoom
	TargetConnection
)

func (t Target) String() string {
	switch t {
	case TargetAll:
		return "all"
	case TargetRoom:
		return "room"
	case TargetConnection:
		return "connection"
	default:
		return "unknown"
	}
}

type Action int

const (
	ActionEmit Action = iota
	// ActionClose asks the transport to terminate the recipients.
	ActionClose
)

// Outbound is one delivery instruction produced by the engine.
// Recipients are resolved when the instruction is produced, so delivery
// reflects the membership seen by the event that caused it.
type Outbound struct {
	Action     Action
	Event      string
	Payload    any
	Target     Target
	RoomID     RoomID
	Recipients []ConnectionID
}

type UsernamePayload struct {
	Username string `json:"username"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type MessagePayload struct {
	ClientID ConnectionID `json:"clientId"`
	Username string       `json:"username"`
	Message  string       `json:"message"`
}

func Unicast(to ConnectionID, event string, payload any) Outbound {
	return Outbound{
		Action:     ActionEmit,
		Event:      event,
		Payload:    payload,
		Target:     TargetConnection,
		Recipients: []ConnectionID{to},
	}
}

func ErrorTo(to ConnectionID, message string) Outbound {
	return Unicast(to, EventError, ErrorPayload{Message: message})
}

func CloseConnection(id ConnectionID) Outbound {
	return Outbound{Action: ActionClose, Target: TargetConnection, Recipients: []ConnectionID{id}}
}
