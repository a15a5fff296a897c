package wire

import "fmt"

// Kind identifies the frame type.
type Kind uint8

const (
	KindSubscribe   Kind = 1
	KindUnsubscribe Kind = 2
	KindPublish     Kind = 3
	KindUnpublish   Kind = 4
	KindAnnounce    Kind = 5
	KindUnannounce  Kind = 6
	KindValue       Kind = 7
	KindPing        Kind = 8
	KindPong        Kind = 9
	KindClose       Kind = 10
)

var kindNames = map[Kind]string{
	KindSubscribe:   "SUBSCRIBE",
	KindUnsubscribe: "UNSUBSCRIBE",
	KindPublish:     "PUBLISH",
	KindUnpublish:   "UNPUBLISH",
	KindAnnounce:    "ANNOUNCE",
	KindUnannounce:  "UNANNOUNCE",
	KindValue:       "VALUE",
	KindPing:        "PING",
	KindPong:        "PONG",
	KindClose:       "CLOSE",
}

// String returns the frame kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsControl reports whether k is a connection-level control frame.
func (k Kind) IsControl() bool {
	return k == KindPing || k == KindPong || k == KindClose
}
