package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ntbridge/ntbridge-go/pkg/metrics"
	"github.com/ntbridge/ntbridge-go/pkg/value"
)

// Command names.
const (
	CommandStartClient = "start_client"
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
	CommandWrite       = "write"
)

// ErrUnknownCommand is returned for unrecognized command names.
var ErrUnknownCommand = errors.New("unknown command")

// Session is the part of session.Manager the commands drive.
type Session interface {
	StartClient(ctx context.Context, address string) error
	Subscribe(topic string) int
	Unsubscribe(topic string) error
	Write(ctx context.Context, topic string, v value.Value) error
}

// Request is a command sent by a UI client.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command"`
	IP      string          `json:"ip,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// Response answers a Request. Error is nil on success.
type Response struct {
	ID      string  `json:"id,omitempty"`
	Command string  `json:"command"`
	Error   *string `json:"error"`
}

// Commands executes UI requests against a session.
type Commands struct {
	session Session
	metrics *metrics.Metrics
}

// NewCommands creates a command executor. mt may be nil.
func NewCommands(s Session, mt *metrics.Metrics) *Commands {
	return &Commands{session: s, metrics: mt}
}

// Execute runs req and renders its outcome.
func (c *Commands) Execute(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Command: req.Command}

	err := c.run(ctx, req)
	result := metrics.ResultOK
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
		result = metrics.ResultFailed
	}
	c.metrics.Command(req.Command, result)
	return resp
}

func (c *Commands) run(ctx context.Context, req Request) error {
	switch req.Command {
	case CommandStartClient:
		return c.session.StartClient(ctx, req.IP)

	case CommandSubscribe:
		c.session.Subscribe(req.Topic)
		return nil

	case CommandUnsubscribe:
		return c.session.Unsubscribe(req.Topic)

	case CommandWrite:
		v, err := decodeValue(req.Value)
		if err != nil {
			return err
		}
		return c.session.Write(ctx, req.Topic, v)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
}

// decodeValue turns a JSON payload into a topic value. Numbers become
// floats; anything other than a number, string or boolean is passed on as
// an unsupported value so the session rejects it.
func decodeValue(raw json.RawMessage) (value.Value, error) {
	if len(raw) == 0 {
		return value.Unsupported(nil), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return value.Value{}, fmt.Errorf("decode value: %w", err)
	}
	return value.FromAny(v), nil
}
