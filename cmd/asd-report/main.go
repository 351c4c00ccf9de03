// asd-report evaluates a trained model bundle on a labeled dataset, and writes the
// per-class classification report as CSV. With -history_db it also lists the recorded
// training runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/janpfeifer/must"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/history"
	"github.com/janpfeifer/screenGo/internal/trainer"
	"github.com/janpfeifer/screenGo/internal/ui/report"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
)

var (
	flagModels    = flag.String("models", "models", "Directory with the trained model artifacts.")
	flagData      = flag.String("data", "", "CSV dataset to evaluate on. If empty, only the history is printed.")
	flagOut       = flag.String("out", "", "Path of the classification report CSV. Defaults to the models directory.")
	flagCutoff    = flag.Float64("cutoff", config.DefaultThresholds.LabelCutoff, "Probabilities at or above the cutoff are labeled 1.")
	flagHistoryDB = flag.String("history_db", "", "SQLite database of the training runs to list.")
	flagRuns      = flag.Int("runs", 10, "Maximum number of training runs listed, 0 for all.")
	flagTop       = flag.Int("top", 10, "Number of most important features to print, if available.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagData == "" && *flagHistoryDB == "" {
		klog.Exitf("Nothing to do: set -data to evaluate a model, and/or -history_db to list training runs.")
	}
	p := report.New(os.Stdout)
	if *flagData != "" {
		evaluate(p)
	}
	if *flagHistoryDB != "" {
		store := must.M1(history.Open(*flagHistoryDB))
		defer func() { _ = store.Close() }()
		p.Runs(must.M1(store.List(context.Background(), *flagRuns)))
	}
}

// evaluate the model in -models on the dataset in -data.
func evaluate(p *report.Printer) {
	bundle, err := artifacts.Load(*flagModels)
	if err != nil {
		klog.Exitf("Failed to load model: %+v", err)
	}
	table, err := dataset.Load(*flagData)
	if err != nil {
		klog.Exitf("Failed to load dataset: %+v", err)
	}
	eval, err := trainer.Evaluate(bundle, table, *flagCutoff)
	if err != nil {
		klog.Exitf("Failed to evaluate: %+v", err)
	}
	out := *flagOut
	if out == "" {
		out = filepath.Join(*flagModels, artifacts.ReportFile)
	}
	must.M(artifacts.SaveReport(out, eval.Report))

	p.Metrics(eval.Metrics)
	p.ClassificationReport(eval.Report)
	if importances, err := artifacts.LoadImportances(filepath.Join(*flagModels, artifacts.ImportancesFile)); err == nil {
		artifacts.SortImportances(importances)
		p.Importances(importances, *flagTop)
	} else {
		klog.V(1).Infof("Feature importances not printed: %v", err)
	}
	fmt.Printf("\nClassification report of %d examples saved to %s\n", table.Len(), out)
}
