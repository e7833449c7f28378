/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
//
// raplinfo prints what the RAPL engine sees on this host: vendor, topology,
// unit calibration, package power info and every catalog register decoded.
//
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/intel/powermeter/internal/clock"
	"github.com/intel/powermeter/internal/msr"
	"github.com/intel/powermeter/internal/rapl"
	"github.com/intel/powermeter/internal/topology"
	"golang.org/x/exp/slices"
	"k8s.io/klog/v2"
)

type CmdLineArgs struct {
	help      bool
	version   bool
	raw       bool
	socket    bool
	bitrange  string
	msrRoot   string
	sysfsRoot string
	verbose   bool
	registers []string
}

// globals
var (
	gVersion     string = "dev" // build overrides this, see makefile
	gCmdLineArgs CmdLineArgs
)

func showUsage() {
	appName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <args> [register...]\n", appName)
	fmt.Fprintf(os.Stderr, "Example: %s -r -s pkg_energy\n", appName)
	flag.PrintDefaults()
}

func showVersion() {
	fmt.Println(gVersion)
}

func parseBitrangeArg() (highBit, lowBit int, err error) {
	bitrangeOK := false
	fields := strings.Split(gCmdLineArgs.bitrange, ":")
	if len(fields) == 2 {
		highBit, err = strconv.Atoi(fields[0])
		if err == nil && highBit > 0 && highBit <= 63 {
			lowBit, err = strconv.Atoi(fields[1])
			if err == nil && lowBit >= 0 && lowBit < 63 {
				if highBit > lowBit {
					bitrangeOK = true
				}
			}
		}
	}
	if !bitrangeOK {
		err = fmt.Errorf("failed to parse bit range: %s", gCmdLineArgs.bitrange)
	}
	return
}

func configureArgs() (err error) {
	flag.Usage = func() { showUsage() } // override default usage output
	flag.BoolVar(&gCmdLineArgs.help, "h", false, "Print this usage message.")
	flag.BoolVar(&gCmdLineArgs.version, "V", false, "Print program version.")
	flag.BoolVar(&gCmdLineArgs.raw, "r", false, "Also print raw register values.")
	flag.BoolVar(&gCmdLineArgs.socket, "s", false, "Read registers once per socket (package/CPU) instead of once per node.")
	flag.StringVar(&gCmdLineArgs.bitrange, "f", "", "With -s, output bits [h:l] only.")
	flag.StringVar(&gCmdLineArgs.msrRoot, "msr-root", msr.DefaultRoot, "Directory holding the msr device files.")
	flag.StringVar(&gCmdLineArgs.sysfsRoot, "sysfs-root", topology.DefaultRoot, "Root of the sysfs tree.")
	flag.BoolVar(&gCmdLineArgs.verbose, "v", false, "Log raw register reads.")
	flag.Parse()
	gCmdLineArgs.registers = flag.Args()
	if gCmdLineArgs.bitrange != "" {
		if !gCmdLineArgs.socket {
			err = fmt.Errorf("-f only valid with -s")
			return
		}
		_, _, err = parseBitrangeArg()
	}
	return
}

func printCalibration(w io.Writer, engine *rapl.EngineContext) {
	topo := engine.Topology()
	cal := engine.Calibration()
	fmt.Fprintf(w, "Vendor:       %s\n", engine.Vendor())
	fmt.Fprintf(w, "Nodes:        %d %v\n", topo.NodeCount(), topo.Nodes)
	fmt.Fprintf(w, "First cores:  %v\n", topo.FirstCoreOfNode)
	fmt.Fprintf(w, "Cores:        %d\n", topo.CoreCount)
	fmt.Fprintf(w, "Power unit:   %g W\n", cal.PowerUnit)
	fmt.Fprintf(w, "Energy unit:  %g J\n", cal.EnergyUnit)
	fmt.Fprintf(w, "Time unit:    %g s\n", cal.TimeUnit)
	fmt.Fprintf(w, "Wraparound:   %g J\n", cal.WraparoundPeriod)
	info, err := engine.TDP()
	if errors.Is(err, rapl.ErrNotSupported) {
		fmt.Fprintf(w, "TDP:          not available on %s\n", engine.Vendor())
		return
	}
	if err != nil {
		fmt.Fprintf(w, "TDP:          %v\n", err)
		return
	}
	fmt.Fprintf(w, "TDP:          %g W (min %g W, max %g W, window %g s)\n",
		info.ThermalSpecPower, info.MinimumPower, info.MaximumPower, info.MaximumTimeWindow)
}

// selectRegisters returns the catalog registers named on the command line,
// or all of them
func selectRegisters(engine *rapl.EngineContext, names []string) (ids []rapl.RegisterID, err error) {
	available := engine.Catalog().Registers(engine.Vendor())
	if len(names) == 0 {
		ids = available
		return
	}
	var availableNames []string
	for _, id := range available {
		availableNames = append(availableNames, string(id))
	}
	for _, name := range names {
		if !slices.Contains(availableNames, name) {
			err = fmt.Errorf("unknown register %s, choose from %s", name, strings.Join(availableNames, ", "))
			return
		}
		ids = append(ids, rapl.RegisterID(name))
	}
	return
}

func printRegisters(w io.Writer, engine *rapl.EngineContext, ids []rapl.RegisterID) (err error) {
	topo := engine.Topology()
	for _, id := range ids {
		for i, node := range topo.Nodes {
			core := topo.FirstCoreOfNode[i]
			desc, raw, values, e := engine.ReadDescriptor(core, id)
			if e != nil {
				fmt.Fprintf(w, "%s node %d core %d: %v\n", id, node, core, e)
				err = e
				continue
			}
			fmt.Fprintf(w, "%s (%#x) node %d core %d\n", id, desc.Address, node, core)
			if gCmdLineArgs.raw {
				fmt.Fprintf(w, "  raw = %#016x\n", raw)
			}
			for j, field := range desc.Fields {
				fmt.Fprintf(w, "  %s [%d:%d] = %d\n", field.Name, field.Offset+field.Width-1, field.Offset, values[j])
			}
		}
	}
	return
}

// printSockets reads each register from one core per socket, as found by the
// msr reader through the package id register
func printSockets(w io.Writer, msrReader *msr.MSR, engine *rapl.EngineContext, ids []rapl.RegisterID) (err error) {
	if gCmdLineArgs.bitrange != "" {
		highBit, lowBit, _ := parseBitrangeArg()
		if err = msrReader.SetBitRange(highBit, lowBit); err != nil {
			return
		}
	}
	for _, id := range ids {
		var desc rapl.Descriptor
		if desc, err = engine.Catalog().Lookup(engine.Vendor(), id); err != nil {
			return
		}
		var vals []uint64
		if vals, err = msrReader.ReadPackages(desc.Address); err != nil {
			return
		}
		for socket, val := range vals {
			fmt.Fprintf(w, "%s (%#x) socket %d = %#x\n", id, desc.Address, socket, val)
		}
	}
	return
}

func mainReturnWithCode() int {
	if err := configureArgs(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		showUsage()
		return 1
	}
	if gCmdLineArgs.help {
		showUsage()
		return 0
	}
	if gCmdLineArgs.version {
		showVersion()
		return 0
	}
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	if gCmdLineArgs.verbose {
		klogFlags.Set("v", "2")
	}
	defer klog.Flush()
	msrReader, err := msr.NewMSRAt(gCmdLineArgs.msrRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	topo, err := topology.Probe(gCmdLineArgs.sysfsRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	catalog, err := rapl.LoadCatalog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	engine, err := rapl.NewEngineContext(msrReader, topo, catalog, clock.Real())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if os.Geteuid() != 0 && (errors.Is(err, fs.ErrPermission) || errors.Is(err, rapl.ErrRegisterAccessDenied)) {
			fmt.Println("Elevated permissions required, try again as root user or with sudo.")
		}
		return 1
	}
	ids, err := selectRegisters(engine, gCmdLineArgs.registers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printCalibration(os.Stdout, engine)
	fmt.Println()
	if gCmdLineArgs.socket {
		err = printSockets(os.Stdout, msrReader, engine, ids)
	} else {
		err = printRegisters(os.Stdout, engine, ids)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func main() { os.Exit(mainReturnWithCode()) }
