package route

// State is the routing lifecycle state. One authoritative instance lives
// inside the [Controller]; callbacks and the control surface read it through
// atomic accessors.
type State int32

const (
	// StateIdle is the initial state before any Start.
	StateIdle State = iota

	// StateConnecting covers device opening and the agent handshake.
	StateConnecting

	// StateLive means audio is flowing in both directions.
	StateLive

	// StatePaused means streams run but silence is substituted for capture
	// and playback; queued agent audio is discarded.
	StatePaused

	// StateStopping covers the ordered teardown of a Stop call.
	StateStopping

	// StateStopped is the terminal state of a clean Stop. Only Start is
	// accepted from here.
	StateStopped

	// StateFailed is entered on an unrecoverable device or connection error,
	// with a reason recorded. Only Start is accepted from here.
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
