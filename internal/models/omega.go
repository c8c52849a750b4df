package models

// Route is a reasoning strategy Omega may select for a turn.
type Route string

const (
	RouteReact Route = "react"
	RouteGraph Route = "graph"
)

// RiskLevel orders the caution a decision carries.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

// Fallback names what to do when the chosen route fails.
type Fallback string

const (
	FallbackAbort                    Fallback = "abort"
	FallbackSwitchToGraph            Fallback = "switch_to_graph"
	FallbackRetryReact               Fallback = "retry_react"
	FallbackRetryBridgeWithoutMeta   Fallback = "retry_bridge_without_metadata"
	FallbackRouteToReact             Fallback = "route_to_react"
)

// TrustClass classifies the evidentiary weight behind a decision.
type TrustClass string

const (
	TrustEvidence     TrustClass = "evidence"
	TrustVerification TrustClass = "verification"
	TrustOther        TrustClass = "other"
)

// Decision is Omega's output for a single turn.
type Decision struct {
	Route      Route
	Confidence float64
	Risk       RiskLevel
	Fallback   Fallback
	TrustClass TrustClass
	Reason     string
	PolicyID   string
}

// Reflection summarizes a completed turn for the purposes of deriving the
// next turn's policy hint.
type Reflection struct {
	TurnID        string
	Outcome       Outcome
	ToolCalls     int
	Confidence    float64
	Notes         string
}

// PolicyHint is a one-shot directive consumed by the next turn in the same
// session.
type PolicyHint struct {
	SourceTurnID     string
	PreferredRoute   Route
	ConfidenceDelta  float64
	RiskFloor        RiskLevel
	FallbackOverride *Fallback
	TrustClass       TrustClass
	Reason           string
}
