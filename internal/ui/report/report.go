// Package report prints training and evaluation results on the terminal: metrics, confusion
// matrix, classification report, top features and the history of training runs.
package report

import (
	"fmt"
	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/history"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"golang.org/x/term"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultWidth used when the output is not a terminal.
const DefaultWidth = 80

var ansiFilter = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// displayWidth of s removes its color/control sequences and returns the length of what is left.
func displayWidth(s string) int {
	return len([]rune(ansiFilter.ReplaceAllString(s, "")))
}

// Printer writes formatted reports to a writer. Colors are only used if the writer is a
// terminal that supports them.
type Printer struct {
	w        io.Writer
	width    int
	renderer *lipgloss.Renderer

	title, header, highlight, dim lipgloss.Style
}

// New creates a Printer for w.
func New(w io.Writer) *Printer {
	p := &Printer{
		w:        w,
		width:    DefaultWidth,
		renderer: lipgloss.NewRenderer(w),
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			p.width = width
		}
	}
	p.title = p.renderer.NewStyle().
		Background(lipgloss.Color("13")).
		Foreground(lipgloss.Color("0")).
		Padding(0, 2).
		Bold(true)
	p.header = p.renderer.NewStyle().Bold(true).Underline(true)
	p.highlight = p.renderer.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	p.dim = p.renderer.NewStyle().Faint(true)
	return p
}

// Width of the output in characters.
func (p *Printer) Width() int { return p.width }

func (p *Printer) println(line string) {
	_, _ = fmt.Fprintln(p.w, line)
}

// printCentered prints each line of the block centered on the output width.
func (p *Printer) printCentered(block string) {
	lines := strings.Split(block, "\n")
	blockWidth := 0
	for _, line := range lines {
		blockWidth = max(blockWidth, displayWidth(line))
	}
	indent := max((p.width-blockWidth)/2, 0)
	for _, line := range lines {
		if len(line) == 0 {
			p.println("")
			continue
		}
		p.println(strings.Repeat(" ", indent) + line)
	}
}

// Title prints a highlighted title.
func (p *Printer) Title(title string) {
	p.println("")
	p.printCentered(p.title.Render(title))
	p.println("")
}

// table formats rows into aligned columns: the first column left aligned, the others right
// aligned. The first row is the header.
func (p *Printer) table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for col, cell := range row {
			widths[col] = max(widths[col], displayWidth(cell))
		}
	}
	var sb strings.Builder
	for ii, row := range rows {
		cells := make([]string, len(row))
		for col, cell := range row {
			pad := strings.Repeat(" ", widths[col]-displayWidth(cell))
			if col == 0 {
				cells[col] = cell + pad
			} else {
				cells[col] = pad + cell
			}
			if ii == 0 {
				cells[col] = p.header.Render(cells[col])
			}
		}
		if ii > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(cells, "   "))
	}
	return sb.String()
}

func format4(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Metrics prints the held-out metrics and the confusion matrix.
func (p *Printer) Metrics(r *metrics.Record) {
	p.Title("Held-out metrics")
	rows := [][]string{
		{"metric", "value"},
		{"accuracy", format4(r.Accuracy)},
		{"precision", format4(r.Precision)},
		{"recall", format4(r.Recall)},
		{"f1", format4(r.F1)},
		{"roc_auc", p.highlight.Render(format4(r.ROCAUC))},
	}
	p.printCentered(p.table(rows))
	p.println("")

	cm := r.ConfusionMatrix
	p.printCentered(p.table([][]string{
		{"", "predicted 0", "predicted 1"},
		{"actual 0", strconv.Itoa(cm.TrueNegatives), strconv.Itoa(cm.FalsePositives)},
		{"actual 1", strconv.Itoa(cm.FalseNegatives), strconv.Itoa(cm.TruePositives)},
	}))
	footer := fmt.Sprintf("support: %d negatives, %d positives; cutoff %g", r.Support[0], r.Support[1], r.Cutoff)
	if r.RunID != "" {
		footer += "; run " + r.RunID
	}
	p.println("")
	p.printCentered(p.dim.Render(footer))
}

// ClassificationReport prints the per-class report.
func (p *Printer) ClassificationReport(reportRows []metrics.ReportRow) {
	p.Title("Classification report")
	rows := [][]string{{"", "precision", "recall", "f1-score", "support"}}
	for _, row := range reportRows {
		rows = append(rows, []string{row.Name, format4(row.Precision), format4(row.Recall),
			format4(row.F1), strconv.Itoa(row.Support)})
	}
	p.printCentered(p.table(rows))
}

// Importances prints the top most important features (all if top <= 0), with a bar
// proportional to their mean importance.
func (p *Printer) Importances(importances []artifacts.Importance, top int) {
	if top <= 0 || top > len(importances) {
		top = len(importances)
	}
	p.Title(fmt.Sprintf("Top %d features", top))
	if top == 0 {
		return
	}
	const barWidth = 20
	maxMean := importances[0].Mean
	for _, imp := range importances[:top] {
		maxMean = max(maxMean, imp.Mean)
	}
	rows := [][]string{{"feature", "rf", "gb", "mean", ""}}
	for _, imp := range importances[:top] {
		bar := ""
		if maxMean > 0 {
			bar = strings.Repeat("█", int(imp.Mean/maxMean*barWidth+0.5))
		}
		bar += strings.Repeat(" ", barWidth-displayWidth(bar))
		rows = append(rows, []string{imp.Feature, format4(imp.RF), format4(imp.GB), format4(imp.Mean),
			p.highlight.Render(bar)})
	}
	p.printCentered(p.table(rows))
}

// Runs prints the history of training runs, most recent first.
func (p *Printer) Runs(runs []*history.Run) {
	p.Title(fmt.Sprintf("Training runs (%d)", len(runs)))
	if len(runs) == 0 {
		p.printCentered(p.dim.Render("no training runs recorded"))
		return
	}
	rows := [][]string{{"run", "date", "learners", "train/test", "f1", "roc_auc", "duration"}}
	for _, run := range runs {
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.Learners,
			fmt.Sprintf("%d/%d", run.NumTrain, run.NumTest),
			format4(run.Metrics.F1),
			format4(run.Metrics.ROCAUC),
			run.Duration.Round(100 * time.Millisecond).String(),
		})
	}
	p.printCentered(p.table(rows))
}
