// robotlearn trains a robot-control actor to imitate human demonstrations.
//
// It works by:
//  1. Creating the demonstrations: a training and a validation set of camera images and the
//     (x, y, z) displacement chosen by the human operator.
//  2. Training the actor for -config=num_epochs=..., with the vision encoder frozen for the first
//     -config=freeze_until=... epochs. Each action channel is discretized into negative, neutral
//     and positive classes, and the actor learns to predict them.
//  3. Validating at the end of each epoch, and printing a final report.
//
// Training can be interrupted with Control+C at any time. See -help for flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/janpfeifer/must"
	"github.com/janpfeifer/robotlearning/internal/profilers"
	"github.com/janpfeifer/robotlearning/internal/ui/console"
	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"os"
	"time"

	_ "github.com/gomlx/gomlx/backends/simplego"
)

// Globals
var (
	// globalCtx used everywhere. It is cancelled when the program is about to exit either by
	// an interrupt (ctrl+C) or by reaching the end.
	globalCtx = context.Background()
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	// Capture Control+C
	var globalCancel func()
	globalCtx, globalCancel = context.WithCancel(context.Background())
	console.SafeInterrupt(globalCancel, 5*time.Second)
	defer globalCancel()

	// Profilers: HTTP profiler server and CPU profile.
	must.M(profilers.Setup(globalCtx))
	defer profilers.OnQuit()

	logCPUInfo()
	ui := console.New(os.Stdout)
	summaries, err := trainActor(globalCtx, ui)
	fmt.Println()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			klog.Fatalf("Training failed: %+v", err)
		}
		fmt.Println("Training interrupted.")
	}
	if len(summaries) > 0 {
		ui.PrintCentered(console.Report("Robot Learning", summaries))
	}
}

// logCPUInfo logs the CPU the pure Go backend will be running on.
func logCPUInfo() {
	if !klog.V(1).Enabled() {
		return
	}
	klog.Infof("CPU: %s (%d physical cores, %d logical), AVX2=%v, AVX512F=%v",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX512F))
}
