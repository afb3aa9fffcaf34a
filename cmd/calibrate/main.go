// Package main fits snow material parameters with CMA-ES so that a dropped
// scene settles into a target shape.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/snow/config"
)

// EvalRecord is one row of calibrate_log.csv.
type EvalRecord struct {
	Eval                int     `csv:"eval"`
	Fitness             float64 `csv:"fitness"`
	Ticks               int     `csv:"ticks"`
	Height              float64 `csv:"height"`
	Spread              float64 `csv:"spread"`
	YoungsModulus       float64 `csv:"youngs_modulus"`
	CriticalCompression float64 `csv:"critical_compression"`
	CriticalStretch     float64 `csv:"critical_stretch"`
	Hardening           float64 `csv:"hardening"`
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	ticks := flag.Int("ticks", 400, "Ticks per evaluation run")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	targetHeight := flag.Float64("target-height", 0.09, "Target mean particle height (m)")
	targetSpread := flag.Float64("target-spread", 0.06, "Target RMS horizontal spread (m)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *outputDir == "" {
		slog.Error("--output is required")
		os.Exit(2)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	baseCfg := config.Cfg()

	params := NewParamVector()
	target := Shape{Height: *targetHeight, Spread: *targetSpread}
	evaluator := NewFitnessEvaluator(params, *ticks, target, baseCfg)

	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		slog.Error("failed to create log file", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := 1e18
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Denormalize(x)
			fitness := evaluator.Evaluate(raw)
			evalCount++

			clamped := params.Clamp(raw)
			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			shape, done := evaluator.Last()
			cfg := *baseCfg
			params.ApplyToConfig(&cfg, clamped)
			rec := []EvalRecord{{
				Eval:                evalCount,
				Fitness:             fitness,
				Ticks:               done,
				Height:              shape.Height,
				Spread:              shape.Spread,
				YoungsModulus:       cfg.Material.YoungsModulus,
				CriticalCompression: cfg.Material.CriticalCompression,
				CriticalStretch:     cfg.Material.CriticalStretch,
				Hardening:           cfg.Material.Hardening,
			}}
			if evalCount == 1 {
				err = gocsv.Marshal(rec, logFile)
			} else {
				err = gocsv.MarshalWithoutHeaders(rec, logFile)
			}
			if err != nil {
				slog.Error("failed to write eval log", "error", err)
			}

			elapsed := time.Since(startTime)
			remaining := time.Duration(*maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			slog.Info("eval",
				"n", evalCount,
				"of", *maxEvals,
				"fitness", fitness,
				"best", bestFitness,
				"height", shape.Height,
				"spread", shape.Spread,
				"elapsed", elapsed.Round(time.Second).String(),
				"eta", remaining.Round(time.Second).String(),
			)
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // runs are already parallel inside
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	slog.Info("starting calibration",
		"params", dim,
		"population", popSize,
		"max_evals", *maxEvals,
		"ticks", *ticks,
		"target_height", target.Height,
		"target_spread", target.Spread,
	)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		slog.Error("no evaluations completed")
		os.Exit(1)
	}

	attrs := []any{"evals", evalCount, "fitness", bestFitness, "elapsed", time.Since(startTime).Round(time.Second).String()}
	for i, spec := range params.Specs {
		attrs = append(attrs, spec.Name, bestParams[i])
	}
	slog.Info("calibration complete", attrs...)

	bestCfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to reload config", "error", err)
		os.Exit(1)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		slog.Error("failed to write best config", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Best config saved to: %s\n", configOutPath)
}
