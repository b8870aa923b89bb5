// Package console reports the training progress on the terminal: a progress line updated in place
// while training, one line per finished epoch, and a final report.
package console

import (
	"fmt"
	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/robotlearning/internal/engine"
	"github.com/janpfeifer/robotlearning/internal/loop"
	"golang.org/x/term"
	"io"
	"k8s.io/klog/v2"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"
)

// SafeInterrupt will capture SigInt (Ctrl+C) and SigTerm and call the provided onInterrupt.
// If the program haven't exited after gracePeriod, it will call Reset to reset the terminal
// and exit.
func SafeInterrupt(onInterrupt func(), gracePeriod time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigChan
		fmt.Println()
		klog.Errorf("Got interrupted (signal %q), shutting down... (%s)", s, gracePeriod)
		if onInterrupt != nil {
			go onInterrupt()
		}
		time.Sleep(gracePeriod)
		Reset()
		klog.Fatalf("Graceful shutting down %s period expired, exiting.", gracePeriod)
	}()
}

// Reset terminal: make cursor visible, restore default terminal colors.
func Reset() {
	fmt.Print("\033[?25h\033[39;49;0m\n")
}

// Console prints the training progress to a writer, usually os.Stdout.
type Console struct {
	w     io.Writer
	start time.Time

	// trainSteps since the start.
	trainSteps int
}

// New creates a Console writing to w. The elapsed time is measured from now.
func New(w io.Writer) *Console {
	return &Console{w: w, start: time.Now()}
}

// Hooks returns the loop hooks that report the progress to the console.
func (c *Console) Hooks() *loop.Hooks {
	return &loop.Hooks{
		OnStep:  c.Step,
		OnEpoch: c.Epoch,
	}
}

// Step updates the progress line, in place.
func (c *Console) Step(phase engine.Phase, epoch, batchIdx int, result engine.StepResult, averageLoss float32) {
	if phase != engine.PhaseTrain {
		return
	}
	c.trainSteps++
	elapsed := time.Since(c.start).Round(time.Second)
	_, _ = fmt.Fprintf(c.w, "\r\tEpoch #%d: %6d steps, ~loss=%.3f, acc=%.3f, elapsed=%s\x1b[0K",
		epoch, c.trainSteps, averageLoss, result.Accuracy, elapsed)
}

// Epoch ends the progress line with the summary of the epoch.
func (c *Console) Epoch(summary loop.EpochSummary) {
	_, _ = fmt.Fprintf(c.w, "\r\tEpoch #%d: train loss=%.3f acc=%.3f ade=%.5f | val loss=%.3f acc=%.3f ade=%.5f\x1b[0K\n",
		summary.Epoch,
		summary.Train.Mean.Loss, summary.Train.Mean.Accuracy, summary.Train.Mean.ADE,
		summary.Val.Mean.Loss, summary.Val.Mean.Accuracy, summary.Val.Mean.ADE)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("13")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 2)
	reportStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("13")).
			Padding(1, 2)
)

// Report renders the final report of the training with the metrics of the last epoch.
func Report(title string, summaries []loop.EpochSummary) string {
	if len(summaries) == 0 {
		return reportStyle.Render(titleStyle.Render(title) + "\n\nNo epoch completed.")
	}
	last := summaries[len(summaries)-1]
	var lines []string
	lines = append(lines, fmt.Sprintf("%-10s %10s %10s", "metric", engine.PhaseTrain, engine.PhaseValidation))
	addLine := func(metric string, train, val float32) {
		lines = append(lines, fmt.Sprintf("%-10s %10.4f %10.4f", metric, train, val))
	}
	addLine(engine.MetricLoss, last.Train.Mean.Loss, last.Val.Mean.Loss)
	addLine(engine.MetricAccuracy, last.Train.Mean.Accuracy, last.Val.Mean.Accuracy)
	addLine(engine.MetricADE, last.Train.Mean.ADE, last.Val.Mean.ADE)
	addLine(engine.MetricFDE, last.Train.Mean.FDE, last.Val.Mean.FDE)
	addLine(engine.MetricMaxDiff, last.Train.Mean.MaxDiff, last.Val.Mean.MaxDiff)
	body := fmt.Sprintf("%s\n\n%d epochs, %d training examples per epoch\n\n%s",
		titleStyle.Render(title), len(summaries), last.Train.NumExamples, strings.Join(lines, "\n"))
	return reportStyle.Render(body)
}

// PrintCentered prints the block of text centered in the terminal, if the console writes to one.
func (c *Console) PrintCentered(block string) {
	lines := strings.Split(block, "\n")
	blockWidth := 0
	for _, line := range lines {
		blockWidth = max(blockWidth, displayWidth(line))
	}
	indent := max((c.terminalWidth()-blockWidth)/2, 0)
	for _, line := range lines {
		if len(line) == 0 {
			_, _ = fmt.Fprintln(c.w)
			continue
		}
		_, _ = fmt.Fprintf(c.w, "%s%s\n", strings.Repeat(" ", indent), line)
	}
}

// terminalWidth returns 0 if not writing to a terminal.
func (c *Console) terminalWidth() int {
	f, ok := c.w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

var ansiFilter = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// displayWidth of s removes its color/control sequences and returns the length of what is left.
func displayWidth(s string) int {
	return lipgloss.Width(ansiFilter.ReplaceAllString(s, ""))
}
