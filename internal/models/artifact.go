package models

// ParamValue records a resolved parameter value together with whether the
// search chose it or it was pinned by configuration.
type ParamValue struct {
	Value     float64 `json:"value"`
	Optimized bool    `json:"optimized"`
}

// RiskParams are the trading knobs a bundle carries for the live agent and
// the backtester. Stop-loss and take-profit are in percent units (1.0 = 1%);
// risk per trade is a fraction of account balance.
type RiskParams struct {
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	RiskPerTrade  float64 `json:"risk_per_trade"`
}

// BundleConfig is the JSON document persisted alongside the model and scaler
// in an artifact bundle. It records everything needed to reproduce and replay
// the training run.
type BundleConfig struct {
	TrainingRunTimestamp string                `json:"training_run_timestamp"`
	StudyName            string                `json:"study_name"`
	SelectedFeatures     []string              `json:"selected_features"`
	Params               map[string]ParamValue `json:"params"`
	RiskParams           RiskParams            `json:"risk_params"`
}
