// Package profilers installs the profiling flags of the binaries:
//
//   - -prof=<port>: serves net/http/pprof on localhost:<port>.
//   - -cpu_profile=<file>: writes a CPU profile of the whole run.
//   - -mem_profile=<file>: writes a heap profile at the end of the run.
//
// Call Setup after flag.Parse and defer OnQuit.
package profilers

import (
	"context"
	"flag"
	"fmt"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
)

var (
	flagProfiler   = flag.Int("prof", -1, "If set, serves the pprof profiler at the given port.")
	flagCPUProfile = flag.String("cpu_profile", "", "write cpu profile to `file`")
	flagMemProfile = flag.String("mem_profile", "", "write heap profile to `file` at the end of the run")
)

// Profilers started by Setup.
type Profilers struct {
	ctx      context.Context
	addr     string
	cpuFile  *os.File
	keepOpen bool
}

// Setup starts the configured profilers. If keepAlive is set and the HTTP profiler is
// enabled, OnQuit waits for ctx to be done before returning, so the profile can still be
// read at the end of a run.
func Setup(ctx context.Context, keepAlive bool) (*Profilers, error) {
	p := &Profilers{ctx: ctx, keepOpen: keepAlive}
	if *flagProfiler >= 0 {
		p.addr = fmt.Sprintf("localhost:%d", *flagProfiler)
		klog.Infof("Profiler serving on http://%s/debug/pprof (e.g.: go tool pprof %s/debug/pprof/heap)", p.addr, p.addr)
		go func() {
			if err := http.ListenAndServe(p.addr, nil); err != nil {
				klog.Errorf("Profiler on %s failed: %v", p.addr, err)
			}
		}()
	}
	if *flagCPUProfile != "" {
		f, err := os.Create(*flagCPUProfile)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create CPU profile %q", *flagCPUProfile)
		}
		if err = pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "could not start CPU profile")
		}
		p.cpuFile = f
	}
	return p, nil
}

// OnQuit stops the CPU profile, writes the heap profile and, if configured, keeps the
// HTTP profiler alive until the context is done.
func (p *Profilers) OnQuit() {
	// Don't freeze on panic.
	if err := recover(); err != nil {
		panic(err)
	}
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			klog.Errorf("Failed to close CPU profile: %v", err)
		}
	}
	if *flagMemProfile != "" {
		if err := writeHeapProfile(*flagMemProfile); err != nil {
			klog.Errorf("%+v", err)
		}
	}
	if p.addr == "" || !p.keepOpen || p.ctx.Err() != nil {
		return
	}
	klog.Infof("Run finished: kept alive with profiler at http://%s/debug/pprof, interrupt (Ctrl+C) to exit", p.addr)
	<-p.ctx.Done()
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create heap profile %q", path)
	}
	runtime.GC()
	if err = pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "could not write heap profile")
	}
	return errors.Wrapf(f.Close(), "failed to close heap profile %q", path)
}
