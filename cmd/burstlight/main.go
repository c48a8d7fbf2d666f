// Copyright (C) 2024 The burstlight authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/pbnjay/memory"

	bl "github.com/burstlight/burstlight/internal"
	"github.com/burstlight/burstlight/internal/compute"
	"github.com/burstlight/burstlight/internal/ops"
	"github.com/burstlight/burstlight/internal/rest"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.tiff", "save output to `file`")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var vis = flag.String("vis", "", "save motion field visualizations with given filename pattern, e.g. `motion%04d.png`")

var mode = flag.String("mode", "spatial", "merge strategy, one of spatial, frequency")
var tileSize = flag.Int64("tileSize", 16, "alignment tile size at the finest pyramid level, even and >= 8")
var robustness = flag.Float64("robustness", 1.0, "motion rejection strength, 0=plain averaging")
var expComp = flag.Bool("expComp", false, "compensate per-tile exposure differences during alignment")
var sharpen = flag.Bool("sharpen", true, "frequency merge: deconvolution boost for well-aligned tiles")
var readNoise = flag.Float64("readNoise", 8, "frequency merge: read noise floor in sensor units")
var shotNoise = flag.Float64("shotNoise", 0.5, "frequency merge: shot noise slope per sensor unit")
var maxMotionNorm = flag.Float64("maxMotionNorm", 8, "frequency merge: maximum noise norm widening at low tile mismatch")

var addr = flag.String("addr", ":8080", "REST server listen address for the serve command")
var chroot = flag.String("chroot", "", "serve command: chroot into this directory (requires root)")
var setuid = flag.Int64("setuid", -1, "serve command: change user id after chroot, -1=no change")

func main() {
	logWriter := bl.LogWriter{}
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `Burstlight Copyright (c) 2024 The burstlight authors
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (merge|align|stats|serve|legal|version) (img0.pgm ... imgn.pgm)

Commands:
  merge   Align and merge a burst of raw frames. The first input is the reference
  align   Align a burst and save motion field visualizations without merging
  stats   Show input frame statistics
  serve   Process merge requests over a REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		if *out != "" {
			*log = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".log"
		} else {
			*log = ""
		}
	}
	if *log != "" {
		if err := bl.LogAlsoToFile(*log); err != nil {
			bl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Also auto-select JPEG output target
	if *jpg == "%auto" {
		if *out != "" {
			*jpg = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".jpg"
		} else {
			*jpg = ""
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			bl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			bl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	dev, err := compute.InitDefault()
	if err != nil {
		bl.LogFatal("Could not initialize compute device: ", err)
	}
	defer dev.Close()
	fmt.Fprintf(logWriter, "Using compute device %s with %d MiB system memory\n", dev.Name(), totalMiBs)

	ctx := ops.NewContext(logWriter, dev)

	switch args[0] {
	case "merge":
		opMerge := ops.NewOpMergeDefault()
		opMerge.Mode = *mode
		opMerge.TileSize = int32(*tileSize)
		opMerge.Robustness = float32(*robustness)
		opMerge.UniformExposure = !*expComp
		opMerge.Sharpen = *sharpen
		opMerge.ReadNoise = float32(*readNoise)
		opMerge.ShotNoise = float32(*shotNoise)
		opMerge.MaxMotionNorm = float32(*maxMotionNorm)
		opMerge.VisualizeTo = *vis

		seq := ops.NewOpSequence(ops.NewOpLoadMany(args[1:]), opMerge, ops.NewOpSave(*out), ops.NewOpSave(*jpg))
		err = materialize(seq, ctx)

	case "align":
		opVis := ops.NewOpAlignVis(int32(*tileSize), *vis)
		if *vis == "" {
			opVis.FilePattern = "motion%04d.png"
			opVis.Active = true
		}
		opVis.UniformExposure = !*expComp
		seq := ops.NewOpSequence(ops.NewOpLoadMany(args[1:]), opVis)
		err = materialize(seq, ctx)

	case "stats":
		seq := ops.NewOpSequence(ops.NewOpLoadMany(args[1:]))
		err = materialize(seq, ctx)

	case "serve":
		rest.MakeSandbox(*chroot, int(*setuid))
		err = rest.Serve(*addr, dev)

	case "legal":
		cmdLegal()

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			bl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			bl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
	bl.LogSync()
}

func materialize(seq *ops.OpSequence, ctx *ops.Context) error {
	promises, err := seq.MakePromises(nil, ctx)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(promises, ctx.MaxThreads)
	return err
}
