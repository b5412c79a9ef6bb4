package bluetooth

// Mode is the operating mode of an open driver
type Mode int32

const (
	ModeUnknown Mode = iota
	ModeInitializing
	ModeReadyComm
	ModeReadyATCommand
	ModeShuttingDown
)

func (m Mode) String() string {
	switch m {
	case ModeUnknown:
		return "unknown"
	case ModeInitializing:
		return "initializing"
	case ModeReadyComm:
		return "ready-communication"
	case ModeReadyATCommand:
		return "ready-at-command"
	case ModeShuttingDown:
		return "shutting-down"
	default:
		return "invalid"
	}
}
