package session

import (
	"fmt"
)

// EchoPrefix is prepended to every echoed text message.
const EchoPrefix = "Echo: "

// Reaction is what the session does in response to one inbound message.
type Reaction struct {
	// Reply is sent back to the peer; nil means nothing is sent.
	Reply *Message

	// End ends the session after the reply has been attempted.
	End bool
}

// React maps an inbound message to its reaction. Pings are answered with a
// pong carrying the same payload and close frames are acknowledged with the
// same close info; both are required by the protocol regardless of how the
// text and binary reactions behave.
func React(m Message) (Reaction, error) {
	switch m.Kind {
	case KindText:
		reply := Text(EchoPrefix + m.Text)
		return Reaction{Reply: &reply}, nil

	case KindBinary:
		reply := Binary(m.Data)
		return Reaction{Reply: &reply}, nil

	case KindPing:
		reply := Pong(m.Data)
		return Reaction{Reply: &reply}, nil

	case KindPong:
		return Reaction{}, nil

	case KindClose:
		var info *CloseInfo
		if m.Close != nil {
			c := *m.Close
			info = &c
		}
		reply := Close(info)
		return Reaction{Reply: &reply, End: true}, nil

	default:
		return Reaction{}, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
}
