/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/intel/powermeter/internal/config"
	"golang.org/x/exp/slices"
)

// CmdLineArgs represents the program arguments provided by the user
type CmdLineArgs struct {
	showHelp    bool
	showVersion bool
	configFile  string
	envFile     string
	// collection options, override the config file when given
	interval   int // milliseconds
	duration   int // seconds
	outputDir  string
	domain     string
	gpu        bool
	console    bool
	prometheus string
	// post-processing options
	summaryFiles  string
	summaryFormat string
	summaryOutput string
	// logging
	verbose     bool
	veryVerbose bool
}

var summaryFormats = []string{"csv", "xlsx"}

func showUsage() {
	appName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTION...]\n", appName)
	usage := `
Samples CPU package energy through the RAPL registers, and GPU energy through
NVML when available, and records power and energy per interval.

Options:
  -h, -help              Show help.
  -V, -version           Show version.
  -c, -config <file>     Read settings from a yaml file.
  -env <file>            Read POWERMETER_* variables from a dotenv file. (default: .env)

Collection Options:
  -i, -interval <ms>     Sampling interval in milliseconds. (default: 100)
  -t, -duration <s>      Stop after this many seconds. 0 runs until interrupted. (default: 0)
  -o, -output <dir>      Directory that receives the cpu and gpu files. (default: power_meter_out)
  -domain <name>         RAPL domain to sample, package or cores. (default: package)
  -gpu                   Sample GPUs through NVML. (default: true)
  -console               Print every interval to stdout.
  -prometheus <addr>     Serve metrics on addr, e.g. :9100.

Post-processing Options:
  -summary <files>       Comma separated list of stream files to summarize, then exit.
  -format <fmt>          Summary format, csv or xlsx. (default: csv)
  -summary-output <file> Write the summary here instead of stdout. Required for xlsx.

Debug Options:
  -v                     Log every interval.
  -vv                    Also log raw register values.

Environment:
  POWERMETER_INTERVAL_MS, POWERMETER_DURATION_S, POWERMETER_OUTPUT_DIR,
  POWERMETER_DOMAIN, POWERMETER_GPU, POWERMETER_CONSOLE, POWERMETER_PROMETHEUS_LISTEN, ...

Examples:
  Record until Ctrl-C, one sample every 100 ms.
    $ sudo ` + appName + `
  Record 60 seconds at 1 second intervals and print each interval.
    $ sudo ` + appName + ` -i 1000 -t 60 -console
  Summarize a previous run as a workbook.
    $ ` + appName + ` -summary power_meter_out/cpu,power_meter_out/gpu -format xlsx -summary-output run.xlsx
`
	fmt.Fprint(os.Stderr, usage)
}

func showVersion() {
	fmt.Println(gVersion)
}

// configureArgs defines and parses the arguments accepted by the application
func configureArgs() {
	flag.Usage = func() { showUsage() } // override default usage output
	flag.BoolVar(&gCmdLineArgs.showHelp, "h", false, "")
	flag.BoolVar(&gCmdLineArgs.showHelp, "help", false, "")
	flag.BoolVar(&gCmdLineArgs.showVersion, "V", false, "")
	flag.BoolVar(&gCmdLineArgs.showVersion, "version", false, "")
	flag.StringVar(&gCmdLineArgs.configFile, "c", "", "")
	flag.StringVar(&gCmdLineArgs.configFile, "config", "", "")
	flag.StringVar(&gCmdLineArgs.envFile, "env", ".env", "")
	// collection options
	flag.IntVar(&gCmdLineArgs.interval, "i", 100, "")
	flag.IntVar(&gCmdLineArgs.interval, "interval", 100, "")
	flag.IntVar(&gCmdLineArgs.duration, "t", 0, "")
	flag.IntVar(&gCmdLineArgs.duration, "duration", 0, "")
	flag.StringVar(&gCmdLineArgs.outputDir, "o", "", "")
	flag.StringVar(&gCmdLineArgs.outputDir, "output", "", "")
	flag.StringVar(&gCmdLineArgs.domain, "domain", "", "")
	flag.BoolVar(&gCmdLineArgs.gpu, "gpu", true, "")
	flag.BoolVar(&gCmdLineArgs.console, "console", false, "")
	flag.StringVar(&gCmdLineArgs.prometheus, "prometheus", "", "")
	// post-processing options
	flag.StringVar(&gCmdLineArgs.summaryFiles, "summary", "", "")
	flag.StringVar(&gCmdLineArgs.summaryFormat, "format", "", "")
	flag.StringVar(&gCmdLineArgs.summaryOutput, "summary-output", "", "")
	// debugging options
	flag.BoolVar(&gCmdLineArgs.verbose, "v", false, "")
	flag.BoolVar(&gCmdLineArgs.veryVerbose, "vv", false, "")
	flag.Parse()
}

// validateArgs is responsible for checking the sanity of the provided command
// line arguments
func validateArgs() (err error) {
	if flag.NArg() > 0 {
		err = fmt.Errorf("unexpected argument: %s", flag.Arg(0))
		return
	}
	if gCmdLineArgs.summaryFormat != "" && gCmdLineArgs.summaryFiles == "" {
		err = fmt.Errorf("-format only valid for post-processing, i.e., -summary <files> required")
		return
	}
	if gCmdLineArgs.summaryOutput != "" && gCmdLineArgs.summaryFiles == "" {
		err = fmt.Errorf("-summary-output only valid for post-processing, i.e., -summary <files> required")
		return
	}
	if gCmdLineArgs.summaryFormat != "" && !slices.Contains(summaryFormats, strings.ToLower(gCmdLineArgs.summaryFormat)) {
		err = fmt.Errorf("'csv' and 'xlsx' are valid options for summary format")
		return
	}
	if strings.ToLower(gCmdLineArgs.summaryFormat) == "xlsx" && gCmdLineArgs.summaryOutput == "" {
		err = fmt.Errorf("-summary-output <file> is required for the xlsx format")
		return
	}
	return
}

// applyArgs overrides cfg with the collection flags present on the command line
func applyArgs(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i", "interval":
			cfg.IntervalMS = gCmdLineArgs.interval
		case "t", "duration":
			cfg.DurationS = gCmdLineArgs.duration
		case "o", "output":
			cfg.OutputDir = gCmdLineArgs.outputDir
		case "domain":
			cfg.Domain = gCmdLineArgs.domain
		case "gpu":
			cfg.GPU = gCmdLineArgs.gpu
		case "console":
			cfg.Console = gCmdLineArgs.console
		case "prometheus":
			cfg.PrometheusListen = gCmdLineArgs.prometheus
		}
	})
}
