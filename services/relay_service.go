package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"presence-relay/contract"
	"presence-relay/domain"
	"presence-relay/errors"

	"github.com/go-playground/validator/v10"
)

const DefaultMinMessageLength = 3

var validate = validator.New()

type IRelayService interface {
	Connect(ctx context.Context, id domain.ConnectionID, username string) error
	Disconnect(ctx context.Context, id domain.ConnectionID) error
	Handle(ctx context.Context, id domain.ConnectionID, event string, data json.RawMessage) error
}

type RoomRequest struct {
	RoomID   string `json:"roomId" validate:"required,max=64"`
	Password string `json:"password" validate:"max=128"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type MessageRequest struct {
	Message string `json:"message" validate:"required,max=4096"`
	RoomID  string `json:"roomId" validate:"omitempty,max=64"`
}

// RelayService is the boundary between the transport and the engine.
// Malformed or invalid frames are rejected here and never queued.
type RelayService struct {
	log              *slog.Logger
	engine           contract.IEngine
	censor           contract.Censor
	minMessageLength int
}

// NewRelayService builds the boundary. A nil censor disables moderation.
func NewRelayService(log *slog.Logger, engine contract.IEngine, censor contract.Censor, minMessageLength int) *RelayService {
	if minMessageLength <= 0 {
		minMessageLength = DefaultMinMessageLength
	}
	return &RelayService{
		log:              log,
		engine:           engine,
		censor:           censor,
		minMessageLength: minMessageLength,
	}
}

// Connect queues the connection even without a username: the engine answers
// with an error and closes it.
func (s *RelayService) Connect(ctx context.Context, id domain.ConnectionID, username string) error {
	return s.engine.Submit(ctx, domain.ConnectCommand{
		ConnectionID: id,
		Username:     strings.TrimSpace(username),
	})
}

func (s *RelayService) Disconnect(ctx context.Context, id domain.ConnectionID) error {
	return s.engine.Submit(ctx, domain.DisconnectCommand{ConnectionID: id})
}

// Handle decodes and validates one inbound frame then queues the matching command.
func (s *RelayService) Handle(ctx context.Context, id domain.ConnectionID, event string, data json.RawMessage) error {
	cmd, err := s.toCommand(id, event, data)
	if err != nil {
		s.log.Debug("Frame rejected", "connection_id", id, "event", event, "error", err)
		return err
	}
	return s.engine.Submit(ctx, cmd)
}

func (s *RelayService) toCommand(id domain.ConnectionID, event string, data json.RawMessage) (domain.Command, error) {
	switch event {
	case domain.EventRoomCreate, domain.EventRoomJoin:
		var r RoomRequest
		if err := decode(data, &r); err != nil {
			return nil, err
		}
		if event == domain.EventRoomCreate {
			return domain.CreateRoomCommand{ConnectionID: id, RoomID: domain.RoomID(r.RoomID), Password: r.Password}, nil
		}
		return domain.JoinRoomCommand{ConnectionID: id, RoomID: domain.RoomID(r.RoomID), Password: r.Password}, nil

	case domain.EventRoomLeave:
		var r LeaveRoomRequest
		if err := decode(data, &r); err != nil {
			return nil, err
		}
		return domain.LeaveRoomCommand{ConnectionID: id, RoomID: domain.RoomID(r.RoomID)}, nil

	case domain.EventMessageSend:
		var r MessageRequest
		if err := decode(data, &r); err != nil {
			return nil, err
		}
		if err := validate.Var(r.Message, fmt.Sprintf("min=%d", s.minMessageLength)); err != nil {
			return nil, fmt.Errorf("%w: message must be at least %d characters", errors.ErrValidation, s.minMessageLength)
		}
		return domain.SendMessageCommand{ConnectionID: id, Message: s.moderate(id, r.Message), RoomID: domain.RoomID(r.RoomID)}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, event)
	}
}

func (s *RelayService) moderate(id domain.ConnectionID, message string) string {
	if s.censor == nil {
		return message
	}
	censored, words := s.censor.Censor(message)
	if len(words) > 0 {
		s.log.Info("Message censored",
			"connection_id", id,
			"words", words,
			"language", s.censor.Language(message))
	}
	return censored
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", errors.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}
