// asd-serve serves the predictions of a trained model bundle over HTTP.
//
// If the model artifacts can't be loaded the server still starts, reporting the model as
// unavailable: /health returns 503 and so does /predict.
package main

import (
	"context"
	"flag"
	"github.com/gin-gonic/gin"
	"github.com/janpfeifer/must"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/inference"
	"github.com/janpfeifer/screenGo/internal/profilers"
	"github.com/janpfeifer/screenGo/internal/server"
	"github.com/janpfeifer/screenGo/internal/ui/spinning"
	"k8s.io/klog/v2"
	"time"
)

var (
	flagConfig = flag.String("config", "", "YAML configuration file, see package config. If empty, defaults are used.")
	flagModels = flag.String("models", "", "Directory with the trained model artifacts.")
	flagAddr   = flag.String("addr", "", "Address to listen to, e.g. \":8000\".")
	flagLow    = flag.Float64("low", 0, "Probabilities below this threshold are \"Low\" risk.")
	flagHigh   = flag.Float64("high", 0, "Probabilities at or above this threshold are \"High\" risk.")
	flagCutoff = flag.Float64("cutoff", 0, "Probabilities at or above this cutoff are labeled 1.")
	flagTop    = flag.Int("top_features", 0, "Number of most important features included in the predictions.")
)

// applyFlags overrides the configuration with the flags that were explicitly set.
func applyFlags(cfg *config.Serving) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "models":
			cfg.Models = *flagModels
		case "addr":
			cfg.Addr = *flagAddr
		case "low":
			cfg.Thresholds.Low = *flagLow
		case "high":
			cfg.Thresholds.High = *flagHigh
		case "cutoff":
			cfg.Thresholds.LabelCutoff = *flagCutoff
		case "top_features":
			cfg.NumTopFeatures = *flagTop
		}
	})
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	cfg := must.M1(config.Load(*flagConfig))
	applyFlags(&cfg.Serving)
	if err := cfg.Validate(); err != nil {
		klog.Exitf("Invalid configuration: %+v", err)
	}

	// Capture Control+C: shut down gracefully, and exit anyway if it takes too long.
	ctx, cancel := context.WithCancel(context.Background())
	spinning.SafeInterrupt(cancel, cfg.Serving.ShutdownTimeout+time.Second)
	defer cancel()

	prof := must.M1(profilers.Setup(ctx, false))
	defer prof.OnQuit()

	gin.SetMode(gin.ReleaseMode)
	service := inference.New(&cfg.Serving)
	if err := server.New(service).ListenAndServe(ctx, &cfg.Serving); err != nil {
		klog.Exitf("Server failed: %+v", err)
	}
	klog.Infof("Server stopped")
}
