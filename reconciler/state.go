package reconciler

// State of a wireguard interface on the host
type State int

const (
	StateDown State = iota
	StateUp
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateUp:
		return "up"
	default:
		return "unknown"
	}
}

// Event is a change requested for an interface
type Event int

const (
	EventStart Event = iota
	EventStop
	EventReboot
	EventPeerAdded
	EventPeerRemoved
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventReboot:
		return "reboot"
	case EventPeerAdded:
		return "peer-added"
	case EventPeerRemoved:
		return "peer-removed"
	default:
		return "unknown"
	}
}

// Step is one action the reconciler performs against the host
type Step int

const (
	StepWriteConfig Step = iota
	StepEnableForwarding
	StepUp
	StepDown
	StepSetPeer
	StepRemovePeer
)

func (s Step) String() string {
	switch s {
	case StepWriteConfig:
		return "write-config"
	case StepEnableForwarding:
		return "enable-forwarding"
	case StepUp:
		return "up"
	case StepDown:
		return "down"
	case StepSetPeer:
		return "set-peer"
	case StepRemovePeer:
		return "remove-peer"
	default:
		return "unknown"
	}
}

// Plan returns the steps that take an interface in state s through event e.
// Roster changes on a running interface update the live peer, then rewrite the interface config.
// On a stopped interface they need no step: they are picked up by the next start.
func Plan(s State, e Event) []Step {
	bringUp := []Step{StepWriteConfig, StepEnableForwarding, StepUp}

	switch e {
	case EventStart:
		if s == StateUp {
			return []Step{StepWriteConfig}
		}
		return bringUp
	case EventStop:
		if s == StateUp {
			return []Step{StepDown}
		}
	case EventReboot:
		if s == StateUp {
			return append([]Step{StepDown}, bringUp...)
		}
		return bringUp
	case EventPeerAdded:
		if s == StateUp {
			return []Step{StepSetPeer, StepWriteConfig}
		}
	case EventPeerRemoved:
		if s == StateUp {
			return []Step{StepRemovePeer, StepWriteConfig}
		}
	}
	return nil
}

// Next returns the state an interface is in once the plan for e has run
func Next(s State, e Event) State {
	switch e {
	case EventStart, EventReboot:
		return StateUp
	case EventStop:
		return StateDown
	default:
		return s
	}
}
