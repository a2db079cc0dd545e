package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fbergmann/pyABC/internal/config"
	"github.com/fbergmann/pyABC/internal/logging"
	"github.com/fbergmann/pyABC/pkg/pyabc"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run inference on a registered problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			configPath, _ := cmd.Flags().GetString("config")
			particles, _ := cmd.Flags().GetInt("particles")
			if particles < 0 {
				return fmt.Errorf("particles must be >= 0")
			}

			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.LoadFromFile(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)
			client, err := pyabc.New(pyabc.Options{StoreKind: cfg.Store, Logger: logger})
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			summary, err := client.Run(cmd.Context(), runRequestFromConfig(cfg))
			if err != nil {
				return err
			}

			var views []pyabc.ParticleView
			if particles > 0 {
				views, err = client.Particles(cmd.Context(), -1)
				if err != nil {
					return err
				}
				sort.Slice(views, func(i, j int) bool { return views[i].Weight > views[j].Weight })
				if len(views) > particles {
					views = views[:particles]
				}
			}

			if jsonOut {
				return writeRunJSON(cmd.OutOrStdout(), summary, views)
			}
			printRunSummary(cmd.OutOrStdout(), summary, views)
			return nil
		},
	}

	cmd.Flags().String("config", "", "run configuration YAML path")
	cmd.Flags().String("problem", "", "registered problem name")
	cmd.Flags().String("run-id", "", "explicit run id (optional)")
	cmd.Flags().Int("population", 0, "accepted particles per generation")
	cmd.Flags().Int("generations", 0, "maximum number of new generations")
	cmd.Flags().Float64("min-epsilon", 0, "stop once the acceptance threshold reaches this value")
	cmd.Flags().IntSlice("simulations", nil, "per-generation simulations per proposed particle (last entry repeats)")
	cmd.Flags().Int("max-attempts", 0, "simulation cap per particle")
	cmd.Flags().Uint64("seed", 0, "rng seed (0 derives one from the clock)")
	cmd.Flags().String("sampler", "", "sampling backend: singlecore|multicore")
	cmd.Flags().Int("workers", 0, "multicore worker count (0 uses all CPUs)")
	cmd.Flags().Int("max-evaluations", 0, "evaluation budget per generation (0 disables)")
	cmd.Flags().Bool("show-progress", false, "print acceptance progress to stderr")
	cmd.Flags().Bool("record-rejected", false, "store rejected particles alongside accepted ones")
	cmd.Flags().Bool("continue-on-single-model", false, "keep going after one model holds all probability")
	cmd.Flags().String("store", "", "store backend: memory")
	cmd.Flags().String("log-level", "", "log verbosity: debug|info|warn|error")
	cmd.Flags().Int("particles", 0, "print the N heaviest posterior particles")

	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("problem") {
		cfg.Problem, _ = flags.GetString("problem")
	}
	if flags.Changed("run-id") {
		cfg.RunID, _ = flags.GetString("run-id")
	}
	if flags.Changed("population") {
		cfg.Population, _ = flags.GetInt("population")
	}
	if flags.Changed("generations") {
		cfg.Generations, _ = flags.GetInt("generations")
	}
	if flags.Changed("min-epsilon") {
		cfg.MinEpsilon, _ = flags.GetFloat64("min-epsilon")
	}
	if flags.Changed("simulations") {
		cfg.Simulations, _ = flags.GetIntSlice("simulations")
	}
	if flags.Changed("max-attempts") {
		cfg.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("sampler") {
		cfg.Sampler.Kind, _ = flags.GetString("sampler")
	}
	if flags.Changed("workers") {
		cfg.Sampler.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-evaluations") {
		cfg.Sampler.MaxEvaluations, _ = flags.GetInt("max-evaluations")
	}
	if flags.Changed("show-progress") {
		cfg.Sampler.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("record-rejected") {
		cfg.RecordRejected, _ = flags.GetBool("record-rejected")
	}
	if flags.Changed("continue-on-single-model") {
		cfg.ContinueOnSingleModel, _ = flags.GetBool("continue-on-single-model")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
}

func runRequestFromConfig(cfg *config.RunConfig) pyabc.RunRequest {
	return pyabc.RunRequest{
		Problem:               cfg.Problem,
		RunID:                 cfg.RunID,
		Population:            cfg.Population,
		Generations:           cfg.Generations,
		MinEpsilon:            cfg.MinEpsilon,
		Simulations:           cfg.Simulations,
		MaxAttempts:           cfg.MaxAttempts,
		Seed:                  cfg.Seed,
		Sampler:               cfg.Sampler.Kind,
		Workers:               cfg.Sampler.Workers,
		MaxEvaluations:        cfg.Sampler.MaxEvaluations,
		ShowProgress:          cfg.Sampler.ShowProgress,
		RecordRejected:        cfg.RecordRejected,
		ContinueOnSingleModel: cfg.ContinueOnSingleModel,
	}
}

type generationOutput struct {
	T              int     `json:"t"`
	Epsilon        float64 `json:"epsilon"`
	Accepted       int     `json:"accepted"`
	Evaluations    int     `json:"evaluations"`
	TotalAttempts  int     `json:"total_attempts"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	ESS            float64 `json:"ess"`
	Complete       bool    `json:"complete"`
}

type particleOutput struct {
	Model     int                `json:"m"`
	Weight    float64            `json:"weight"`
	Parameter map[string]float64 `json:"parameter"`
}

type runOutput struct {
	RunID              string             `json:"run_id"`
	Problem            string             `json:"problem"`
	StopReason         string             `json:"stop_reason"`
	TotalSimulations   int                `json:"total_simulations"`
	FinalEpsilon       float64            `json:"final_epsilon"`
	ModelProbabilities map[int]float64    `json:"model_probabilities"`
	Generations        []generationOutput `json:"generations"`
	Particles          []particleOutput   `json:"particles,omitempty"`
}

func writeRunJSON(w io.Writer, summary pyabc.RunSummary, particles []pyabc.ParticleView) error {
	out := runOutput{
		RunID:              summary.RunID,
		Problem:            summary.Problem,
		StopReason:         summary.StopReason,
		TotalSimulations:   summary.TotalSimulations,
		FinalEpsilon:       summary.FinalEpsilon,
		ModelProbabilities: summary.ModelProbabilities,
	}
	for _, gen := range summary.Generations {
		out.Generations = append(out.Generations, generationOutput{
			T:              gen.T,
			Epsilon:        gen.Epsilon,
			Accepted:       gen.Accepted,
			Evaluations:    gen.Evaluations,
			TotalAttempts:  gen.TotalAttempts,
			AcceptanceRate: gen.AcceptanceRate,
			ESS:            gen.ESS,
			Complete:       gen.Complete,
		})
	}
	for _, p := range particles {
		out.Particles = append(out.Particles, particleOutput{
			Model:     p.Model,
			Weight:    p.Weight,
			Parameter: p.Parameter,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printRunSummary(w io.Writer, summary pyabc.RunSummary, particles []pyabc.ParticleView) {
	fmt.Fprintf(w, "run completed run_id=%s problem=%s stop=%s simulations=%s\n",
		summary.RunID, summary.Problem, summary.StopReason, humanize.Comma(int64(summary.TotalSimulations)))
	for _, gen := range summary.Generations {
		fmt.Fprintf(w, "generation=%d epsilon=%.6f accepted=%d evaluations=%d acceptance_rate=%.4f ess=%.1f complete=%t\n",
			gen.T, gen.Epsilon, gen.Accepted, gen.Evaluations, gen.AcceptanceRate, gen.ESS, gen.Complete)
	}

	models := make([]int, 0, len(summary.ModelProbabilities))
	for m := range summary.ModelProbabilities {
		models = append(models, m)
	}
	sort.Ints(models)
	for _, m := range models {
		fmt.Fprintf(w, "model=%d probability=%.6f\n", m, summary.ModelProbabilities[m])
	}

	for i, p := range particles {
		fmt.Fprintf(w, "particle=%d model=%d weight=%.6f parameter=%s\n",
			i, p.Model, p.Weight, formatParameter(p.Parameter))
	}
}

func formatParameter(param map[string]float64) string {
	names := make([]string, 0, len(param))
	for name := range param {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.6f", name, param[name]))
	}
	return strings.Join(parts, ",")
}
