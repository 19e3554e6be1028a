// Command ballpit runs bouncing ball simulations.
//
// # Usage
//
// The ballpit command takes one optional argument:
//
//	ballpit [config_file]
//
// It is the path to a TOML config file.
// If no config file is specified, an interactive simulation
// with default parameters will run in an OpenGL window.
//
// # Config file
//
// The config file is written in TOML, keys are the field names of Config
// (matched case-insensitively). Unknown keys are rejected. For example:
//
//	BodyCount = 400
//	GravityY = 0
//	Output = "runs/zero-g.h5"
//	Steps = 6000
//
// Setting Listen streams frames to websocket clients instead,
// setting Output records them to an HDF5 file,
// and setting Replay plays back a recording in the OpenGL window.
//
// # Interactive mode
//
// In interactive mode, the simulation can be paused/resumed with space.
// While in pause, pressing right arrow will perform a single step.
// Holding the left mouse button pulls every ball toward the cursor.
// R respawns all balls, G toggles the grid overlay and V toggles velocity lines.
// Pressing Esc or closing the window will quit.
//
// # Known bugs
//
// Collisions are resolved once per pair per step in grid order,
// so dense piles settle slowly and may jitter at the bottom wall.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/PrincetonUniversity/ballpit"
	"github.com/PrincetonUniversity/ballpit/hdf5"
	"github.com/PrincetonUniversity/ballpit/opengl"
	"github.com/PrincetonUniversity/ballpit/stream"
)

const usage = `Usage: ballpit [config_file]

The first argument is optional and is the path to a TOML config file.
If no config file is specified, an interactive simulation
with default parameters will run in an OpenGL window.
`

func init() {
	// Most OpenGL functions have to run from the main thread.
	// This is needed to arrange that main() runs on main thread.
	// See https://github.com/golang/go/wiki/LockOSThread for more info.
	runtime.LockOSThread()
}

func main() {
	var conf *Config
	var err error
	switch len(os.Args) {
	case 1:
		c := DefaultConf
		conf = &c
	case 2:
		conf, err = ParseConfig(os.Args[1])
	default:
		err = fmt.Errorf("%d arguments provided (0 required, 1 optional)\n\n%s", len(os.Args)-1, usage)
	}
	if err != nil {
		Fatal(err)
	}

	// setup simulation
	sim, reset, err := setup(conf)
	if err != nil {
		Fatal(err)
	}

	// pick a driver depending on config
	switch {
	case conf.Listen != "":
		err = RunStream(conf, sim)
	case conf.Output != "":
		err = RunHDF5(conf, sim)
	case conf.Replay != "":
		err = RunReplay(conf, sim)
	default:
		err = RunOpenGL(conf, sim, reset)
	}
	if err != nil {
		Fatal(err)
	}
}

// Fatal prints an error on the standard output and exits with a non-zero status.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	os.Exit(1)
}

// setup creates the simulation and spawns its bodies.
// The returned reset function respawns a fresh set of bodies.
func setup(conf *Config) (*ballpit.Simulation, func() error, error) {
	seed := conf.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	sim := ballpit.New(conf.Bounds(), conf.Params())
	reset := func() error {
		sim.Reset()
		return sim.Spawn(conf.BodyCount, conf.Spawn(), rng)
	}
	if err := reset(); err != nil {
		return nil, nil, err
	}
	return sim, reset, nil
}

// RunOpenGL runs an interactive simulation in an OpenGL window.
func RunOpenGL(conf *Config, sim *ballpit.Simulation, reset func() error) error {
	dt := conf.FrameDt()
	return opengl.Run(sim, &opengl.Config{
		MaxBodies: conf.BodyCount,
		Step:      func() { sim.Advance(dt, conf.SubSteps) },
		Reset: func() {
			if err := reset(); err != nil {
				Fatal(err)
			}
		},
		ShowGrid: conf.ShowGrid,
		ShowVel:  conf.ShowVelocity,
		Attract:  conf.AttractStrength,
	})
}

// RunReplay plays back a recording in an OpenGL window.
func RunReplay(conf *Config, sim *ballpit.Simulation) (err error) {
	l, err := hdf5.NewLoader(conf.Replay, "bodies")
	if err != nil {
		return fmt.Errorf("replay %s: %w", conf.Replay, err)
	}
	defer func() {
		if cerr := l.Close(); err == nil {
			err = cerr
		}
	}()

	// the grid overlay shows the recorded frame
	next := func() {
		if err := l.Load(&sim.Bodies); err != nil {
			Fatal(err)
		}
		sim.Grid().Rebuild(sim.Bodies)
	}
	next()
	return opengl.Run(sim, &opengl.Config{
		Title:     "Ballpit replay: " + conf.Replay,
		MaxBodies: len(sim.Bodies),
		Step:      next,
		ShowGrid:  conf.ShowGrid,
		ShowVel:   conf.ShowVelocity,
	})
}

// RunHDF5 runs a simulation and saves data to an HDF5 file.
func RunHDF5(conf *Config, sim *ballpit.Simulation) error {
	dt := conf.FrameDt()
	return hdf5.Run(sim, &hdf5.Config{
		Output: conf.Output,
		Steps:  conf.Steps,
		Step:   func() { sim.Advance(dt, conf.SubSteps) },
		Datasets: []*hdf5.Dataset{
			hdf5.Bodies(conf.BodyCount),
			hdf5.Contacts(),
			hdf5.Energy(),
		},
		Meta:     conf,
		Progress: os.Stdout,
	})
}

// RunStream serves the simulation to websocket clients until interrupted.
func RunStream(conf *Config, sim *ballpit.Simulation) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dt := conf.FrameDt()
	return stream.Run(ctx, sim, &stream.Config{
		Addr: conf.Listen,
		FPS:  conf.FPS,
		Step: func() { sim.Advance(dt, conf.SubSteps) },
		Log:  stream.NewLogger("ballpit"),
	})
}
