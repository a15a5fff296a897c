package capture

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/value"
	"github.com/ntbridge/ntbridge-go/pkg/wire"
)

const testConnID = "abc12345-6789-0123-4567-890abcdef012"

func frameEvent(t *testing.T, role log.Role, dir log.Direction, kind wire.Kind, body any) log.Event {
	t.Helper()
	data, err := wire.Encode(kind, body)
	if err != nil {
		t.Fatalf("Encode(%s) failed: %v", kind, err)
	}
	return log.WireEvent(testConnID, role, dir, data)
}

func writeCapture(t *testing.T, events ...log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.ntcap")
	fl, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		fl.Log(e)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: testConnID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      128,
			Data:      []byte{0xa1, 0x01, 0x02, 0x03},
			Truncated: true,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z",
		"[conn:abc12345]",
		"OUT",
		"TRANSPORT",
		"Frame",
		"128 bytes",
		"a1010203 (truncated)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatWireEvents(t *testing.T) {
	tests := []struct {
		name  string
		event log.Event
		want  []string
	}{
		{
			name: "announce",
			event: frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindAnnounce,
				wire.Announce{Name: "/robot/speed", ID: 3, Type: value.TypeDouble}),
			want: []string{"IN", "WIRE", "ANNOUNCE", "Topic: /robot/speed", "ID: 3", "Type: double"},
		},
		{
			name: "value",
			event: frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindValue,
				wire.Value{ID: 3, Timestamp: 42, Type: value.TypeDouble, Value: value.Float(1.5)}),
			want: []string{"VALUE", "Value: 1.5", "ServerTime: 42us"},
		},
		{
			name: "subscribe",
			event: frameEvent(t, log.RoleClient, log.DirectionOut, wire.KindSubscribe,
				wire.Subscribe{SubUID: 1, Patterns: []string{""}}),
			want: []string{"OUT", "SUBSCRIBE", `Patterns: [""]`},
		},
		{
			name: "ping",
			event: frameEvent(t, log.RoleServer, log.DirectionIn, wire.KindPing,
				wire.Ping{Sequence: 7}),
			want: []string{"CTRL", "PING", "Seq: 7"},
		},
		{
			name: "state",
			event: log.Event{
				ConnectionID: testConnID,
				Layer:        log.LayerSession,
				Category:     log.CategoryState,
				StateChange: &log.StateChangeEvent{
					Entity:   log.StateEntityConnection,
					OldState: "CONNECTED",
					NewState: "DISCONNECTED",
					Reason:   "peer closed",
				},
			},
			want: []string{"SESSION", "State", "CONNECTED -> DISCONNECTED", "Reason: peer closed"},
		},
		{
			name:  "undecodable",
			event: log.WireEvent(testConnID, log.RoleClient, log.DirectionIn, []byte{0xff}),
			want:  []string{"Error", "Context: decode frame"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatEvent(&buf, tt.event)
			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("expected %q in output, got: %s", want, output)
				}
			}
		})
	}
}

func TestRunViewFilter(t *testing.T) {
	path := writeCapture(t,
		frameEvent(t, log.RoleClient, log.DirectionOut, wire.KindPublish,
			wire.Publish{PubUID: 1, Name: "/a", Type: value.TypeString}),
		frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindAnnounce,
			wire.Announce{Name: "/b", ID: 2, Type: value.TypeBoolean}),
	)

	out := log.DirectionOut
	var buf bytes.Buffer
	if err := RunView(path, log.Filter{Direction: &out}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "PUBLISH") {
		t.Errorf("expected PUBLISH event, got: %s", output)
	}
	if strings.Contains(output, "ANNOUNCE") {
		t.Errorf("expected ANNOUNCE to be filtered out, got: %s", output)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing"), log.Filter{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCollectResolvesValueTopics(t *testing.T) {
	path := writeCapture(t,
		frameEvent(t, log.RoleClient, log.DirectionOut, wire.KindPublish,
			wire.Publish{PubUID: 1, Name: "/out", Type: value.TypeDouble}),
		frameEvent(t, log.RoleClient, log.DirectionOut, wire.KindValue,
			wire.Value{ID: 1, Type: value.TypeDouble, Value: value.Float(1)}),
		frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindAnnounce,
			wire.Announce{Name: "/in", ID: 1, Type: value.TypeDouble}),
		frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindValue,
			wire.Value{ID: 1, Type: value.TypeDouble, Value: value.Float(2)}),
		frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindValue,
			wire.Value{ID: 1, Type: value.TypeDouble, Value: value.Float(3)}),
		frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindValue,
			wire.Value{ID: 9, Type: value.TypeDouble, Value: value.Float(4)}),
	)

	stats, err := Collect(path)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if stats.TotalEvents != 6 {
		t.Errorf("TotalEvents = %d, want 6", stats.TotalEvents)
	}
	if len(stats.Connections) != 1 {
		t.Errorf("Connections = %d, want 1", len(stats.Connections))
	}
	want := map[string]int{"/out": 1, "/in": 2, "#9": 1}
	for name, n := range want {
		if got := stats.ValuesByTopic[name]; got != n {
			t.Errorf("ValuesByTopic[%q] = %d, want %d", name, got, n)
		}
	}
}

func TestRunStats(t *testing.T) {
	path := writeCapture(t,
		frameEvent(t, log.RoleClient, log.DirectionIn, wire.KindAnnounce,
			wire.Announce{Name: "/in", ID: 1, Type: value.TypeDouble}),
		log.WireEvent(testConnID, log.RoleClient, log.DirectionIn, []byte{0xff}),
	)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"Total Events: 2", "WIRE:", "Connections: 1", "[abc12345] CLIENT", "Errors: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayer("Wire"); err != nil || l != log.LayerWire {
		t.Errorf("ParseLayer(Wire) = %v, %v", l, err)
	}
	if _, err := ParseLayer("service"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirection("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirection(OUT) = %v, %v", d, err)
	}
	if c, err := ParseCategory("control"); err != nil || c != log.CategoryControl {
		t.Errorf("ParseCategory(control) = %v, %v", c, err)
	}
}
