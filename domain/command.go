package domain

// Command is an inbound event already validated by the boundary.
type Command interface {
	Connection() ConnectionID
}

type ConnectCommand struct {
	ConnectionID ConnectionID
	Username     string
}

func (c ConnectCommand) Connection() ConnectionID { return c.ConnectionID }

type DisconnectCommand struct {
	ConnectionID ConnectionID
}

func (c DisconnectCommand) Connection() ConnectionID { return c.ConnectionID }

type CreateRoomCommand struct {
	ConnectionID ConnectionID
	RoomID       RoomID
	Password     string
}

func (c CreateRoomCommand) Connection() ConnectionID { return c.ConnectionID }

type JoinRoomCommand struct {
	ConnectionID ConnectionID
	RoomID       RoomID
	Password     string
}

func (c JoinRoomCommand) Connection() ConnectionID { return c.ConnectionID }

type LeaveRoomCommand struct {
	ConnectionID ConnectionID
	RoomID       RoomID
}

func (c LeaveRoomCommand) Connection() ConnectionID { return c.ConnectionID }

// SendMessageCommand targets every connection when RoomID is empty.
type SendMessageCommand struct {
	ConnectionID ConnectionID
	Message      string
	RoomID       RoomID
}

func (c SendMessageCommand) Connection() ConnectionID { return c.ConnectionID }
