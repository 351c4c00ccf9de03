// asd-train trains the calibrated soft voting ensemble on a questionnaire dataset, and saves
// the model bundle, the metrics and the reports to the output directory.
//
// Values of the configuration file (-config) are overridden by the flags explicitly set.
package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/janpfeifer/must"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/profilers"
	"github.com/janpfeifer/screenGo/internal/trainer"
	"github.com/janpfeifer/screenGo/internal/ui/report"
	"github.com/janpfeifer/screenGo/internal/ui/spinning"
	"k8s.io/klog/v2"
	"os"
	"strings"
	"time"
)

var (
	flagConfig   = flag.String("config", "", "YAML configuration file, see package config. If empty, defaults are used.")
	flagData     = flag.String("data", "", "CSV dataset with the questionnaire answers and a \"label\" column.")
	flagOut      = flag.String("out", "", "Directory where to save the model and reports.")
	flagSeed     = flag.Uint64("seed", 0, "Seed for the split, the folds and the learners.")
	flagTestSize = flag.Float64("test_size", 0, "Fraction of the dataset held-out for evaluation.")
	flagCV       = flag.Int("cv", 0, "Number of cross-validation folds of the isotonic calibration.")
	flagLearners = flag.String("learners", "", "Learners of the soft voting ensemble, separated by \";\". "+
		"Each one is a configuration like \"rf:n_estimators=200,max_depth=5\".")
	flagHistoryDB   = flag.String("history_db", "", "SQLite database where to record the training run.")
	flagImportances = flag.Int("importances", 0, "Number of trees used to compute feature importances. "+
		"Set to 0 to skip them.")
	flagSynthetic = flag.Int("synthetic", 0, "If > 0, generate a synthetic dataset with this number of rows "+
		"to -data before training.")
	flagTop = flag.Int("top", 10, "Number of most important features to print.")
)

// applyFlags overrides the configuration with the flags that were explicitly set.
func applyFlags(cfg *config.Training) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data = *flagData
		case "out":
			cfg.Models = *flagOut
		case "seed":
			cfg.Seed = *flagSeed
		case "test_size":
			cfg.TestSize = *flagTestSize
		case "cv":
			cfg.CV = *flagCV
		case "learners":
			cfg.Learners = nil
			for _, learner := range strings.Split(*flagLearners, ";") {
				if learner = strings.TrimSpace(learner); learner != "" {
					cfg.Learners = append(cfg.Learners, learner)
				}
			}
		case "history_db":
			cfg.HistoryDB = *flagHistoryDB
		case "importances":
			cfg.ImportanceEstimators = max(*flagImportances, 0)
		}
	})
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	// Capture Control+C
	ctx, cancel := context.WithCancel(context.Background())
	spinning.SafeInterrupt(cancel, 5*time.Second)
	defer cancel()

	prof := must.M1(profilers.Setup(ctx, true))
	defer prof.OnQuit()

	cfg := must.M1(config.Load(*flagConfig))
	applyFlags(&cfg.Training)
	if err := cfg.Validate(); err != nil {
		klog.Exitf("Invalid configuration: %+v", err)
	}
	if *flagSynthetic > 0 {
		must.M(dataset.Synthetic(*flagSynthetic, cfg.Training.Seed).Save(cfg.Training.Data))
		klog.Infof("Synthetic dataset with %d rows saved to %s", *flagSynthetic, cfg.Training.Data)
	}

	spinner := spinning.New(ctx, fmt.Sprintf("Training on %s", cfg.Training.Data))
	result, err := trainer.Run(ctx, &cfg.Training)
	elapsed := spinner.Done()
	if ctx.Err() != nil {
		klog.Exitf("Training interrupted after %s", elapsed.Round(time.Second))
	}
	if err != nil {
		klog.Exitf("Training failed: %+v", err)
	}

	p := report.New(os.Stdout)
	p.Metrics(result.Metrics)
	if len(result.Importances) > 0 {
		p.Importances(result.Importances, *flagTop)
	}
	fmt.Printf("\nTrained with %d examples, evaluated on %d, in %s. Artifacts saved to %s\n",
		result.NumTrain, result.NumTest, elapsed.Round(time.Millisecond), cfg.Training.Models)
}
