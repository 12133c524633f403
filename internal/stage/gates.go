package stage

import "stagegate/internal/lifecycle"

// GateRequirements returns the human-readable thresholds attached to a
// promotion edge. They are surfaced for audit and display whether or not the
// edge is blocked. Non-promotion edges have none.
func GateRequirements(from, to lifecycle.Stage) []string {
	switch {
	case from == lifecycle.StageTrials && to == lifecycle.StagePaper:
		return []string{
			"backtest Sharpe ratio >= 1.0",
			"at least 30 backtest trades",
			"backtest max drawdown <= 20%",
		}
	case from == lifecycle.StagePaper && to == lifecycle.StageShadow:
		return []string{
			"at least 14 days of paper trading",
			"paper PnL within 25% of backtest expectation",
		}
	case from == lifecycle.StageShadow && to == lifecycle.StageCanary:
		return []string{
			"at least 7 days of shadow trading",
			"shadow fill divergence <= 5%",
		}
	case from == lifecycle.StageCanary && to == lifecycle.StageLive:
		return []string{
			"at least 14 days of canary trading",
			"no risk-limit breaches during canary",
			"governance maker-checker approval",
		}
	}
	return nil
}
