package smc

// Stop reasons reported by Run.
const (
	StopMinEpsilon      = "min_epsilon_reached"
	StopMaxGenerations  = "max_generations_reached"
	StopMaxEvaluations  = "max_evaluations_exhausted"
	StopEmptyPopulation = "empty_population"
	StopSingleModel     = "single_model_left"
)

// GenerationReport summarizes one evolved population. Complete is false
// when the evaluation budget ran out before the population filled up.
type GenerationReport struct {
	T                 int     `json:"t"`
	Epsilon           float64 `json:"epsilon"`
	Accepted          int     `json:"accepted"`
	Evaluations       int     `json:"evaluations"`
	TotalAttempts     int     `json:"total_attempts"`
	AcceptanceRate    float64 `json:"acceptance_rate"`
	ESS               float64 `json:"ess"`
	DegenerateWeights int     `json:"degenerate_weights"`
	CapExceeded       int     `json:"cap_exceeded"`
	Complete          bool    `json:"complete"`
}

// RunReport summarizes the generations of one Run call.
type RunReport struct {
	RunID            string             `json:"run_id"`
	MinEpsilon       float64            `json:"min_epsilon"`
	Generations      []GenerationReport `json:"generations"`
	StopReason       string             `json:"stop_reason"`
	TotalSimulations int                `json:"total_simulations"`
}
