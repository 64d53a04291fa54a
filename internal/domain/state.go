package domain

type (
	SignalingState    string
	ConnectivityState string
	OverallState      string
)

const (
	SignalingStable          SignalingState = "stable"
	SignalingHaveLocalOffer  SignalingState = "have-local-offer"
	SignalingHaveRemoteOffer SignalingState = "have-remote-offer"
	SignalingClosed          SignalingState = "closed"
)

const (
	ConnectivityNew          ConnectivityState = "new"
	ConnectivityChecking     ConnectivityState = "checking"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityCompleted    ConnectivityState = "completed"
	ConnectivityDisconnected ConnectivityState = "disconnected"
	ConnectivityFailed       ConnectivityState = "failed"
	ConnectivityClosed       ConnectivityState = "closed"
)

const (
	OverallNew          OverallState = "new"
	OverallConnecting   OverallState = "connecting"
	OverallConnected    OverallState = "connected"
	OverallDisconnected OverallState = "disconnected"
	OverallFailed       OverallState = "failed"
	OverallClosed       OverallState = "closed"
)

// IsTerminal reports whether no further lifecycle reaction follows s.
func (s OverallState) IsTerminal() bool {
	switch s {
	case OverallConnected, OverallDisconnected, OverallFailed, OverallClosed:
		return true
	}
	return false
}

// IsFailure reports the terminal-failure subset.
func (s OverallState) IsFailure() bool {
	return s == OverallDisconnected || s == OverallFailed || s == OverallClosed
}

type Axis int

const (
	AxisSignaling Axis = iota
	AxisConnectivity
	AxisOverall
)

func (a Axis) String() string {
	switch a {
	case AxisSignaling:
		return "signaling"
	case AxisConnectivity:
		return "connectivity"
	case AxisOverall:
		return "overall"
	}
	return "unknown"
}

// StateEvent is one engine transition on a single axis.
type StateEvent struct {
	Axis  Axis
	State string
}

func SignalingEvent(s SignalingState) StateEvent {
	return StateEvent{Axis: AxisSignaling, State: string(s)}
}

func ConnectivityEvent(s ConnectivityState) StateEvent {
	return StateEvent{Axis: AxisConnectivity, State: string(s)}
}

func OverallEvent(s OverallState) StateEvent {
	return StateEvent{Axis: AxisOverall, State: string(s)}
}

// StateSnapshot is a read-only view of the three axes.
type StateSnapshot struct {
	Signaling    SignalingState    `json:"signaling"`
	Connectivity ConnectivityState `json:"connectivity"`
	Overall      OverallState      `json:"overall"`
}
