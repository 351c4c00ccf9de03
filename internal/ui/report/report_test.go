package report

import (
	"bytes"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/history"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

func TestDisplayWidth(t *testing.T) {
	assert.Equal(t, 5, displayWidth("hello"))
	assert.Equal(t, 5, displayWidth("\x1b[1;32mhello\x1b[0m"))
	assert.Equal(t, 3, displayWidth("███"))
}

func TestMetrics(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	assert.Equal(t, DefaultWidth, p.Width())
	p.Metrics(&metrics.Record{
		Accuracy: 0.9, Precision: 0.8, Recall: 0.75, F1: 0.7742, ROCAUC: 0.95,
		ConfusionMatrix: metrics.ConfusionMatrix{TrueNegatives: 10, FalsePositives: 2, FalseNegatives: 3, TruePositives: 9},
		Support:         [2]int{12, 12},
		Cutoff:          0.5,
		RunID:           "abc",
	})
	out := buf.String()
	for _, want := range []string{"Held-out metrics", "accuracy", "0.9000", "roc_auc", "0.9500",
		"predicted 1", "actual 0", "run abc", "cutoff 0.5"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "no colors when writing to a buffer")

	// Lines are centered within DefaultWidth.
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, displayWidth(line), DefaultWidth)
	}
}

func TestTables(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.ClassificationReport([]metrics.ReportRow{
		{Name: "0", Precision: 1, Recall: 0.5, F1: 0.6667, Support: 4},
		{Name: "weighted avg", Precision: 0.9, Recall: 0.8, F1: 0.8, Support: 8},
	})
	p.Importances([]artifacts.Importance{
		{Feature: "A9_Score", RF: 0.3, GB: 0.5, Mean: 0.4},
		{Feature: "A6_Score", RF: 0.2, GB: 0.2, Mean: 0.2},
		{Feature: "age_missing", Mean: 0},
	}, 2)
	p.Runs(nil)
	p.Runs([]*history.Run{{
		ID:        "0123456789abcdef",
		CreatedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		Learners:  "rf,gb",
		NumTrain:  80,
		NumTest:   20,
		Duration:  1234 * time.Millisecond,
	}})
	out := buf.String()
	for _, want := range []string{"weighted avg", "0.6667", "Top 2 features", "A9_Score", "A6_Score",
		"no training runs recorded", "01234567", "2024-05-01 10:30", "80/20", "1.2s"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "age_missing")
	assert.NotContains(t, out, "0123456789")

	// Bar of the top feature is full, and the second one is half of it.
	require.Contains(t, out, strings.Repeat("█", 20))
	assert.Contains(t, out, strings.Repeat("█", 10)+strings.Repeat(" ", 10))
}
