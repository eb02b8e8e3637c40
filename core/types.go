package core

// MessageKind is the variant tag of a Message.
type MessageKind uint8

// All message kinds
const (
	KindRequest MessageKind = iota + 1
	KindResponse
	KindNotification
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result kind carried by a response.
type Outcome uint8

// All outcomes
const (
	Success Outcome = 0x01
	Failure Outcome = 0x02
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Failure:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the side of a connection.
type Role uint8

// All roles
const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// State is the lifecycle state of a connection.
type State int32

// All connection states
const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Terminal returns true if no further transition can leave the state.
func (s State) Terminal() bool {
	return s == StateClosed
}
