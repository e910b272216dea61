package monitor

// State is the monitor's position in its cycle.
type State int32

const (
	Idle State = iota
	Scanning
	Diffing
	Scoring
	Reporting
	Alerting
	Sleeping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Diffing:
		return "diffing"
	case Scoring:
		return "scoring"
	case Reporting:
		return "reporting"
	case Alerting:
		return "alerting"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
