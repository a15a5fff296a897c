package log

import (
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

// WireEvent decodes an encoded frame into a wire-layer event. Frames that
// fail to decode produce an error event instead.
func WireEvent(connID string, role Role, dir Direction, data []byte) Event {
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
		LocalRole:    role,
	}

	f, err := wire.Decode(data)
	if err != nil {
		event.Category = CategoryError
		event.Error = &ErrorEventData{Layer: LayerWire, Message: err.Error(), Context: "decode frame"}
		return event
	}

	if f.Kind.IsControl() {
		event.Category = CategoryControl
		event.ControlMsg = controlEvent(f)
		return event
	}

	event.Category = CategoryMessage
	msg, err := messageEvent(f)
	if err != nil {
		event.Category = CategoryError
		event.Error = &ErrorEventData{Layer: LayerWire, Message: err.Error(), Context: "decode " + f.Kind.String()}
		return event
	}
	event.Message = msg
	return event
}

func controlEvent(f *wire.Frame) *ControlMsgEvent {
	switch f.Kind {
	case wire.KindPing:
		ev := &ControlMsgEvent{Type: ControlMsgPing}
		if p, err := wire.DecodeBody[wire.Ping](f); err == nil {
			ev.Sequence = &p.Sequence
		}
		return ev
	case wire.KindPong:
		ev := &ControlMsgEvent{Type: ControlMsgPong}
		if p, err := wire.DecodeBody[wire.Pong](f); err == nil {
			ev.Sequence = &p.Sequence
		}
		return ev
	default:
		ev := &ControlMsgEvent{Type: ControlMsgClose}
		if c, err := wire.DecodeBody[wire.Close](f); err == nil {
			ev.Reason = c.Reason
		}
		return ev
	}
}

func messageEvent(f *wire.Frame) (*MessageEvent, error) {
	ev := &MessageEvent{Kind: f.Kind}

	switch f.Kind {
	case wire.KindSubscribe:
		b, err := wire.DecodeBody[wire.Subscribe](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.SubUID
		ev.Patterns = b.Patterns
	case wire.KindUnsubscribe:
		b, err := wire.DecodeBody[wire.Unsubscribe](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.SubUID
	case wire.KindPublish:
		b, err := wire.DecodeBody[wire.Publish](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.PubUID
		ev.Topic = b.Name
		ev.Type = b.Type
	case wire.KindUnpublish:
		b, err := wire.DecodeBody[wire.Unpublish](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.PubUID
	case wire.KindAnnounce:
		b, err := wire.DecodeBody[wire.Announce](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.ID
		ev.Topic = b.Name
		ev.Type = b.Type
	case wire.KindUnannounce:
		b, err := wire.DecodeBody[wire.Unannounce](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.ID
		ev.Topic = b.Name
	case wire.KindValue:
		b, err := wire.DecodeBody[wire.Value](f)
		if err != nil {
			return nil, err
		}
		ev.ID = &b.ID
		ev.Type = b.Type
		ev.Value = b.Value.Interface()
		ev.ServerTime = b.Timestamp
	}
	return ev, nil
}
