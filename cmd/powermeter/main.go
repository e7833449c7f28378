/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
//
// Command line interface and program logic
//
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/intel/powermeter/internal/clock"
	"github.com/intel/powermeter/internal/config"
	"github.com/intel/powermeter/internal/derived"
	"github.com/intel/powermeter/internal/gpu"
	"github.com/intel/powermeter/internal/meter"
	"github.com/intel/powermeter/internal/msr"
	"github.com/intel/powermeter/internal/rapl"
	"github.com/intel/powermeter/internal/sink"
	"github.com/intel/powermeter/internal/summary"
	"github.com/intel/powermeter/internal/topology"
	"k8s.io/klog/v2"
)

// globals
var (
	gVersion     string = "dev" // build overrides this, see makefile
	gCmdLineArgs CmdLineArgs
)

// The program will exit with one of these exit codes
const (
	exitNoError   = 0
	exitError     = 1
	exitInterrupt = 2
)

func configureLogging() {
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	switch {
	case gCmdLineArgs.veryVerbose:
		klogFlags.Set("v", "2")
	case gCmdLineArgs.verbose:
		klogFlags.Set("v", "1")
	}
}

func loadConfig() (cfg config.Config, err error) {
	if cfg, err = config.Load(gCmdLineArgs.configFile); err != nil {
		return
	}
	if err = config.LoadEnvFile(gCmdLineArgs.envFile); err != nil {
		err = fmt.Errorf("failed to load %s: %v", gCmdLineArgs.envFile, err)
		return
	}
	if err = cfg.ApplyEnv(); err != nil {
		return
	}
	applyArgs(&cfg)
	err = cfg.Validate()
	return
}

// postProcess summarizes previously recorded stream files
func postProcess(cfg config.Config) (err error) {
	evaluator, err := derived.Compile(cfg.Derived)
	if err != nil {
		return
	}
	var summaries []summary.Summary
	for _, path := range strings.Split(gCmdLineArgs.summaryFiles, ",") {
		var s summary.Summary
		if s, err = summary.FromCSV(strings.TrimSpace(path), evaluator); err != nil {
			return
		}
		summaries = append(summaries, s)
	}
	if strings.ToLower(gCmdLineArgs.summaryFormat) == "xlsx" {
		var f *os.File
		if f, err = os.Create(gCmdLineArgs.summaryOutput); err != nil {
			return
		}
		defer f.Close()
		err = summary.WriteXLSX(summaries, f)
		return
	}
	out := summary.CSV(summaries)
	if gCmdLineArgs.summaryOutput != "" {
		err = os.WriteFile(gCmdLineArgs.summaryOutput, []byte(out), 0644)
		return
	}
	fmt.Print(out)
	return
}

// needsElevation reports whether err came from being denied register access
// while not running as root
func needsElevation(err error, euid int) bool {
	if euid == 0 {
		return false
	}
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, rapl.ErrRegisterAccessDenied)
}

// openEngine prepares the RAPL engine for the CPU stream
func openEngine(cfg config.Config, clk clock.Clock) (engine *rapl.EngineContext, err error) {
	msrReader, err := msr.NewMSRAt(cfg.MSRRoot)
	if err != nil {
		return
	}
	topo, err := topology.Probe(cfg.SysfsRoot)
	if err != nil {
		return
	}
	catalog, err := rapl.LoadCatalog()
	if err != nil {
		return
	}
	engine, err = rapl.NewEngineContext(msrReader, topo, catalog, clk)
	return
}

// openGPU returns nil, without an error, when GPU sampling is off or not possible
func openGPU(cfg config.Config, clk clock.Clock) (gpuMeter *gpu.Meter, closer func() error) {
	if !cfg.GPU {
		return
	}
	nv, err := gpu.OpenNVML()
	if err != nil {
		klog.Infof("GPU stream disabled: %v", err)
		return
	}
	if gpuMeter, err = gpu.NewMeter(nv, clk); err != nil {
		klog.Infof("GPU stream disabled: %v", err)
		nv.Close()
		return
	}
	closer = nv.Close
	return
}

// doWork samples every stream until interrupted or the configured duration ends
func doWork(cfg config.Config) (code int) {
	clk := clock.Real()
	engine, err := openEngine(cfg, clk)
	if err != nil {
		klog.Errorf("failed to initialize RAPL: %v", err)
		if needsElevation(err, os.Geteuid()) {
			fmt.Println("Elevated permissions required, try again as root user or with sudo.")
		}
		return exitError
	}
	domain, err := rapl.ParseDomain(cfg.Domain)
	if err != nil {
		klog.Errorf("%v", err)
		return exitError
	}
	evaluator, err := derived.Compile(cfg.Derived)
	if err != nil {
		klog.Errorf("failed to compile derived metrics: %v", err)
		return exitError
	}
	gpuMeter, gpuClose := openGPU(cfg, clk)
	if gpuClose != nil {
		defer gpuClose()
	}
	streamNames := []string{"cpu"}
	if gpuMeter != nil {
		streamNames = append(streamNames, "gpu")
	}
	// sinks shared by all streams, closed once
	var shared []sink.Sink
	var closers []sink.Sink
	defer func() {
		for _, s := range closers {
			if err := s.Close(); err != nil {
				klog.Errorf("failed to close sink: %v", err)
			}
		}
	}()
	if cfg.Console {
		var console *sink.Console
		if console, err = sink.NewConsole(os.Stdout, streamNames); err != nil {
			klog.Errorf("failed to start console: %v", err)
			return exitError
		}
		shared = append(shared, console)
		closers = append(closers, console)
	}
	if cfg.PrometheusListen != "" {
		prom := sink.NewPrometheus()
		if err = prom.Serve(cfg.PrometheusListen); err != nil {
			klog.Errorf("failed to serve prometheus metrics: %v", err)
			return exitError
		}
		shared = append(shared, prom)
		closers = append(closers, prom)
	}
	newSink := func(fileName string) (s sink.Sink, err error) {
		csvSink, err := sink.CreateCSV(cfg.OutputDir, fileName)
		if err != nil {
			return
		}
		closers = append(closers, csvSink)
		s = append(sink.Multi{csvSink}, shared...)
		return
	}
	cpuSink, err := newSink(cfg.CPUFile)
	if err != nil {
		klog.Errorf("failed to create cpu output: %v", err)
		return exitError
	}
	streams := []meter.Stream{{
		Name:     "cpu",
		Snapshot: func() (rapl.Snapshot, error) { return engine.Snapshot(domain) },
		Diff:     engine.Diff,
		Sink:     cpuSink,
		Derived:  evaluator,
	}}
	if gpuMeter != nil {
		var gpuSink sink.Sink
		if gpuSink, err = newSink(cfg.GPUFile); err != nil {
			klog.Errorf("failed to create gpu output: %v", err)
			return exitError
		}
		streams = append(streams, meter.Stream{
			Name:     "gpu",
			Snapshot: gpuMeter.Snapshot,
			Diff:     gpuMeter.Diff,
			Sink:     gpuSink,
			Derived:  evaluator,
		})
	}
	m, err := meter.New(cfg.Interval(), clk, streams...)
	if err != nil {
		klog.Errorf("%v", err)
		return exitError
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Duration() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration())
		defer cancel()
	}
	if err = m.Start(); err != nil {
		klog.Errorf("%v", err)
		return exitError
	}
	klog.Infof("Sampling %s every %v, writing to %s", strings.Join(streamNames, " and "), cfg.Interval(), cfg.OutputDir)
	<-ctx.Done()
	code = exitNoError
	if errors.Is(ctx.Err(), context.Canceled) {
		code = exitInterrupt
	}
	if err = m.Stop(); err != nil {
		klog.Errorf("%v", err)
		return exitError
	}
	for _, name := range streamNames {
		klog.Infof("%s total energy: %.3f J", name, m.Total(name))
	}
	return
}

// mainReturnWithCode is responsible for initialization and highest-level program
// logic/flow
func mainReturnWithCode() int {
	configureArgs()
	configureLogging()
	defer klog.Flush()
	err := validateArgs()
	if err != nil {
		klog.Errorf("Invalid argument error: %v", err)
		showUsage()
		return exitError
	}
	if gCmdLineArgs.showHelp {
		showUsage()
		return exitNoError
	}
	if gCmdLineArgs.showVersion {
		showVersion()
		return exitNoError
	}
	klog.V(1).Infof("Starting up %s, version: %s, arguments: %s",
		filepath.Base(os.Args[0]),
		gVersion,
		strings.Join(os.Args[1:], " "),
	)
	cfg, err := loadConfig()
	if err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return exitError
	}
	klog.V(1).Infof("configuration:\n%s", cfg)
	if gCmdLineArgs.summaryFiles != "" {
		if err = postProcess(cfg); err != nil {
			klog.Errorf("Error while post-processing: %v", err)
			return exitError
		}
		return exitNoError
	}
	return doWork(cfg)
}

// main exits the process with code returned by called function
func main() {
	os.Exit(mainReturnWithCode())
}
