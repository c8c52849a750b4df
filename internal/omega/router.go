// Package omega implements the Omega Router: a pure-function decision layer
// selecting a turn's reasoning route, risk, and fallback policy through
// stateless candidate selection over rules.
package omega

import "github.com/omegaflow/agentcore/internal/models"

// Inputs carries the per-turn features the Router decides over.
type Inputs struct {
	ShortcutAvailable bool
	Reflection        *models.Reflection
	Hint              *models.PolicyHint
	ToolCallCount     int
	Confidence        float64
}

// Decide returns the turn's decision. With a shortcut available it returns
// the graph-route shortcut decision without applying in.Hint; otherwise it
// returns the default react decision with in.Hint applied when one is set.
// Reflection, ToolCallCount and Confidence are not consulted.
func Decide(in Inputs) models.Decision {
	if in.ShortcutAvailable {
		return models.Decision{
			Route:      models.RouteGraph,
			Confidence: 0.74,
			Risk:       models.RiskLow,
			Fallback:   models.FallbackAbort,
			TrustClass: models.TrustVerification,
			Reason:     "shortcut_available",
		}
	}
	base := models.Decision{
		Route:      models.RouteReact,
		Confidence: 0.74,
		Risk:       models.RiskLow,
		Fallback:   models.FallbackAbort,
		TrustClass: models.TrustOther,
		Reason:     "default",
	}
	if in.Hint != nil {
		base = ApplyPolicyHint(base, *in.Hint)
	}
	return base
}

// ApplyPolicyHint returns a copy of base adjusted per hint: route overridden, risk clamped to
// at least the hint's floor, trust-class set from the hint, confidence
// nudged by the hint's delta (clamped to [0,1]), and fallback overridden
// when the hint specifies one.
func ApplyPolicyHint(base models.Decision, hint models.PolicyHint) models.Decision {
	out := base
	out.Route = hint.PreferredRoute
	if hint.RiskFloor > out.Risk {
		out.Risk = hint.RiskFloor
	}
	out.TrustClass = hint.TrustClass
	out.Confidence = clamp01(out.Confidence + hint.ConfidenceDelta)
	if hint.FallbackOverride != nil {
		out.Fallback = *hint.FallbackOverride
	}
	out.Reason = out.Reason + "; policy_hint=" + hint.Reason
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DerivePolicyHint reflects on a completed turn to produce the next turn's
// one-shot hint, or nil when no adjustment is warranted.
func DerivePolicyHint(turnID string, r models.Reflection) *models.PolicyHint {
	switch {
	case r.Outcome == models.OutcomeError:
		fb := models.FallbackSwitchToGraph
		return &models.PolicyHint{
			SourceTurnID:     turnID,
			PreferredRoute:   models.RouteGraph,
			ConfidenceDelta:  -0.18,
			RiskFloor:        models.RiskMedium,
			FallbackOverride: &fb,
			TrustClass:       models.TrustVerification,
			Reason:           "prior_turn_errored",
		}
	case r.ToolCalls == 0 && r.Confidence >= 0.8:
		return &models.PolicyHint{
			SourceTurnID:    turnID,
			PreferredRoute:  models.RouteReact,
			ConfidenceDelta: 0.08,
			RiskFloor:       models.RiskLow,
			TrustClass:      models.TrustEvidence,
			Reason:          "prior_turn_confident_no_tools",
		}
	case r.ToolCalls >= 4 || r.Confidence < 0.45:
		fb := models.FallbackSwitchToGraph
		return &models.PolicyHint{
			SourceTurnID:     turnID,
			PreferredRoute:   models.RouteGraph,
			ConfidenceDelta:  -0.1,
			RiskFloor:        models.RiskMedium,
			FallbackOverride: &fb,
			TrustClass:       models.TrustVerification,
			Reason:           "prior_turn_heavy_or_uncertain",
		}
	default:
		return nil
	}
}

// ResolveShortcutFallback decides what to do when a shortcut (graph-bridge)
// attempt fails: the first attempt (attempt==0) maps each fallback to its
// recovery action; any subsequent attempt always aborts.
func ResolveShortcutFallback(fb models.Fallback, attempt int) models.Fallback {
	if attempt > 0 {
		return models.FallbackAbort
	}
	switch fb {
	case models.FallbackAbort:
		return models.FallbackAbort
	case models.FallbackSwitchToGraph:
		return models.FallbackRetryBridgeWithoutMeta
	case models.FallbackRetryReact:
		return models.FallbackRouteToReact
	default:
		return models.FallbackAbort
	}
}
