package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/XorTroll/pegasus/admin"
	"github.com/XorTroll/pegasus/config"
	"github.com/XorTroll/pegasus/cpu/stub"
	"github.com/XorTroll/pegasus/domain"
	"github.com/XorTroll/pegasus/fsview"
	"github.com/XorTroll/pegasus/kernel"
	"github.com/XorTroll/pegasus/loader"
	"github.com/XorTroll/pegasus/nand"
	"github.com/XorTroll/pegasus/services/sm"
	"github.com/XorTroll/pegasus/svc"
)

const usage = `pegasus

pegasus emulates the Horizon OS kernel: its multi-core scheduler,
reference-counted kernel objects, handle tables, ports/sessions and HIPC
pipeline, loading a single NSO+NPDM pair and running its main thread
against the emulated kernel.
`

var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

// demoProgram stands in for the guest code a real ARM64 interpreter
// would execute: cpu/stub only understands its own pre-decoded
// Instruction stream, not the raw machine code loader.ParseNSO extracts,
// so this is what actually drives the main thread's SVC traps end to
// end. MOV X0, #0 ; SVC #0x07 (ExitProcess) ; B 1 (branch back to the
// SVC, re-issuing ExitProcess if it ever returns).
var demoProgram = stub.Program{
	{Op: stub.OpMovImm, Rd: 0, Imm: 0},
	{Op: stub.OpSVC, Imm: svc.IDExitProcess},
	{Op: stub.OpB, Target: 1},
}

// rawSource adapts a fixed set of named byte slices to fsview.Source, so
// the loaded NSO/NPDM pair can be inspected read-only over FUSE without
// needing a real NCA/RomFS section behind it.
type rawSource struct {
	files map[string][]byte
}

func (s *rawSource) Paths() []string {
	out := make([]string, 0, len(s.files))
	for name := range s.files {
		out = append(out, name)
	}
	return out
}

func (s *rawSource) Open(name string) ([]byte, error) {
	data, ok := s.files[name]
	if !ok {
		return nil, domain.ResultNotFound
	}
	return data, nil
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	var prof interface{ Stop() }

	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")
	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	if memProfOn {
		prof = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	return prof, nil
}

func exitHandler(signalChan chan os.Signal, mount *fsview.Mount, prof interface{ Stop() }) {
	printStack := false
	s := <-signalChan

	logrus.Warnf("pegasus caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")
	systemd.SdNotify(false, systemd.SdNotifyStopping)

	switch s {
	case syscall.SIGABRT, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGSEGV:
		printStack = true
	}
	if printStack {
		stacktrace := make([]byte, 32768)
		length := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:length]))
	}

	if mount != nil {
		if err := mount.Close(); err != nil {
			logrus.Warnf("failed to unmount fsview: %v", err)
		}
	}
	if prof != nil {
		prof.Stop()
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

// driveThread is the emulator's own guest-execution loop: it alternates
// between parking on the scheduler's grant (kernel.RunGuestThread) and
// letting the thread's CPUContext run until it traps, dispatching SVC
// traps through the svc.Table exactly as spec §6's guest ABI describes.
func driveThread(k *kernel.Kernel, p *kernel.KProcess, t *kernel.KThread, table *svc.Table) {
	k.RunGuestThread(t)

	for t.State() != kernel.ThreadTerminated {
		cpu := t.CPU()
		trap, err := cpu.Run()
		if err != nil {
			logrus.Errorf("%s: cpu fault: %v", kernel.ThreadID(t.ID()), err)
			p.Terminate(t, true)
			return
		}

		switch trap {
		case domain.TrapSVC:
			res := table.Dispatch(k, p, t, cpu, cpu.SVCNumber())
			cpu.SetGPR(0, uint64(res))
		case domain.TrapFatal:
			logrus.Errorf("%s: fatal trap", kernel.ThreadID(t.ID()))
			p.Terminate(t, true)
			return
		}

		if t.State() == kernel.ThreadTerminated {
			return
		}
		k.RunGuestThread(t)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "pegasus"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "nso", Usage: "path to the main NSO to load"},
		cli.StringFlag{Name: "npdm", Usage: "path to the NPDM (META) file describing the NSO"},
		cli.StringFlag{Name: "config", Value: "pegasus.json", Usage: "path to pegasus's config file"},
		cli.StringFlag{Name: "mountpoint", Usage: "optional fsview mount point exposing the loaded NSO/NPDM read-only"},
		cli.StringFlag{Name: "log", Value: "", Usage: "log file path or empty string for stderr output"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "log categories to include (debug, info, warning, error, fatal)"},
		cli.StringFlag{Name: "log-format", Value: "text", Usage: "log format; must be json or text"},
		cli.BoolFlag{Name: "cpu-profiling", Usage: "enable cpu-profiling data collection", Hidden: true},
		cli.BoolFlag{Name: "memory-profiling", Usage: "enable memory-profiling data collection", Hidden: true},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("pegasus\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("error opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
		}

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch logLevel := ctx.GlobalString("log-level"); logLevel {
		case "debug":
			flag.Set("fuse.debug", "true")
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option %q not recognized. Exiting ...", logLevel)
		}
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating pegasus ...")

		nsoPath := ctx.String("nso")
		npdmPath := ctx.String("npdm")
		if nsoPath == "" || npdmPath == "" {
			return fmt.Errorf("both --nso and --npdm are required")
		}

		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		scanner, err := nand.NewScanner(nand.StorageSystem, cfg.NandSystemPath, filepath.Join(cfg.NandSystemPath, ".cache"))
		if err != nil {
			return fmt.Errorf("failed to open NAND scanner: %w", err)
		}
		defer scanner.Close()
		if err := scanner.Scan(); err != nil {
			logrus.Warnf("NAND scan reported errors: %v", err)
		}
		logrus.Infof("NAND catalogue holds %d content entries", scanner.Index().Len())

		nsoRaw, err := os.ReadFile(nsoPath)
		if err != nil {
			return fmt.Errorf("failed to read NSO: %w", err)
		}
		nso, err := loader.ParseNSO(nsoRaw)
		if err != nil {
			return fmt.Errorf("failed to parse NSO: %w", err)
		}
		logrus.Infof("NSO loaded: text=%d rodata=%d data=%d bss=%d image-size=%d",
			len(nso.Text), len(nso.RoData), len(nso.Data), nso.BssSize, nso.TotalImageSize(0x1000))

		npdmRaw, err := os.ReadFile(npdmPath)
		if err != nil {
			return fmt.Errorf("failed to read NPDM: %w", err)
		}
		npdm, err := loader.ParseNPDM(npdmRaw)
		if err != nil {
			return fmt.Errorf("failed to parse NPDM: %w", err)
		}
		logrus.Infof("NPDM loaded: process=%q product=%q priority=%d core=%d",
			npdm.ProcessName, npdm.ProductCode, npdm.MainThreadPriority, npdm.MainThreadCore)

		k := kernel.NewKernel()
		svcTable := svc.NewTable()

		limit := k.NewResourceLimit()
		limit.SetLimit(kernel.ResourceThreads, 64)
		limit.SetLimit(kernel.ResourceEvents, 256)
		limit.SetLimit(kernel.ResourceSessions, 256)
		limit.SetLimit(kernel.ResourceTransferMemory, 64)

		proc := k.NewProcess(npdm.ProcessName, npdm.Capabilities, limit)

		cpuCtx := stub.New(demoProgram, 0, 0, npdm.MainThreadStackSize)
		mainThread, res := proc.NewThread(npdm.MainThreadPriority, npdm.MainThreadCore, 1, cpuCtx, npdm.ProcessName+"-main")
		if !res.IsSuccess() {
			return fmt.Errorf("failed to create main thread: %v", res)
		}

		smMgr, res := sm.NewManager(k)
		if !res.IsSuccess() {
			return fmt.Errorf("failed to start sm: %v", res)
		}
		go smMgr.Serve(k.NewHostThread("sm"))

		loaderThread := k.NewHostThread("loader")
		if res := proc.Start(loaderThread); !res.IsSuccess() {
			return fmt.Errorf("failed to start process: %v", res)
		}

		var mount *fsview.Mount
		if mp := ctx.String("mountpoint"); mp != "" {
			mount, err = fsview.New(mp, &rawSource{files: map[string][]byte{
				filepath.Base(nsoPath):  nsoRaw,
				filepath.Base(npdmPath): npdmRaw,
			}})
			if err != nil {
				return fmt.Errorf("failed to build fsview mount: %w", err)
			}
			go func() {
				if err := mount.Run(); err != nil {
					logrus.Warnf("fsview mount exited: %v", err)
				}
			}()
		}

		introspection := admin.New(k)
		logrus.Infof("started process %q (%s)", proc.Name(), kernel.ProcessID(proc.ID()))

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, mount, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("Ready ...")

		driveThread(k, proc, mainThread, svcTable)

		for _, p := range introspection.ListProcesses() {
			logrus.Infof("final state: %s (%s) state=%v threads=%d handles=%d",
				p.Name, kernel.ProcessID(p.ID), p.State, p.ThreadCount, p.HandleCount)
		}

		if mount != nil {
			mount.Close()
		}

		logrus.Info("Done.")
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
