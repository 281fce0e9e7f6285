package call

// Role of this session in the offer/answer exchange. Set once at session
// start, immutable afterwards.
type Role int

const (
	RoleNone Role = iota
	RoleCaller
	RoleCallee
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleCallee:
		return "callee"
	default:
		return "none"
	}
}

// State is the session's signaling state.
type State int

const (
	StateIdle State = iota
	StateAwaitingLocalMedia
	StateOfferCreated
	StateOfferReceived
	StateAnswerCreated
	StateAnswerReceived
	StateConnected
	StateFailed
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateAwaitingLocalMedia: "awaiting_local_media",
	StateOfferCreated:       "offer_created",
	StateOfferReceived:      "offer_received",
	StateAnswerCreated:      "answer_created",
	StateAnswerReceived:     "answer_received",
	StateConnected:          "connected",
	StateFailed:             "failed",
	StateClosed:             "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}
