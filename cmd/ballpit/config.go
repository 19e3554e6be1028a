package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/PrincetonUniversity/ballpit"
	"github.com/go-gl/mathgl/mgl64"
)

// Config holds the various parameters required for running a simulation.
type Config struct {
	// Output is either a filename (path) for the HDF5 output file,
	// or the empty string for an interactive simulation.
	Output string

	// Listen is the address of the websocket stream server, e.g. ":8080".
	// It takes precedence over Output.
	Listen string

	// Replay is the path of an HDF5 file previously written with Output.
	// When set, the OpenGL window plays it back instead of simulating.
	Replay string

	BodyCount int     // number of bodies
	Steps     int     // number of frames (hdf5 only)
	FPS       int     // frames per second (opengl and stream)
	TimeScale float64 // simulated time per frame is 10/FPS·TimeScale
	SubSteps  int     // physics steps per frame

	// Arena parameters
	Width    float64 // unit: px
	Height   float64 // unit: px
	CellSize float64 // unit: px

	// Physics parameters
	GravityX        float64 // unit: px/time²
	GravityY        float64 // unit: px/time², positive is down
	WallRestitution float64 // unit: 1
	Restitution     float64 // unit: 1

	// Spawn parameters
	MinRadius float64 // unit: px
	MaxRadius float64 // unit: px
	MaxSpeed  float64 // unit: px/time
	Mass      float64 // unit: 1

	// Interactive parameters
	AttractStrength float64 // unit: px/time gained per frame
	ShowGrid        bool
	ShowVelocity    bool

	// Seed of the PRNG, 0 means seeded from the clock.
	Seed int64
}

// DefaultConf are the default parameters.
var DefaultConf = Config{
	Output:          "",
	Listen:          "",
	Replay:          "",
	BodyCount:       200,
	Steps:           3600,
	FPS:             60,
	TimeScale:       1,
	SubSteps:        2,
	Width:           800,
	Height:          600,
	CellSize:        ballpit.DefaultParams.CellSize,
	GravityX:        ballpit.DefaultParams.Gravity[0],
	GravityY:        ballpit.DefaultParams.Gravity[1],
	WallRestitution: ballpit.DefaultParams.WallRestitution,
	Restitution:     ballpit.DefaultParams.Restitution,
	MinRadius:       ballpit.DefaultSpawn.MinRadius,
	MaxRadius:       ballpit.DefaultSpawn.MaxRadius,
	MaxSpeed:        ballpit.DefaultSpawn.MaxSpeed,
	Mass:            ballpit.DefaultSpawn.Mass,
	AttractStrength: 5,
	ShowGrid:        true,
	ShowVelocity:    false,
	Seed:            0,
}

// ParseConfig parses the TOML config file whose path is provided.
func ParseConfig(path string) (*Config, error) {
	// config file overwrites default parameters
	conf := DefaultConf
	md, err := toml.DecodeFile(path, &conf)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &conf, nil
}

// Validate checks that the parameters can run a simulation.
func (c *Config) Validate() error {
	switch {
	case c.BodyCount < 0:
		return fmt.Errorf("body count must not be negative, got %d", c.BodyCount)
	case c.Output != "" && c.Steps <= 0:
		return fmt.Errorf("steps must be positive when recording, got %d", c.Steps)
	case c.FPS <= 0:
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	case !(c.TimeScale > 0):
		return fmt.Errorf("time scale must be positive, got %g", c.TimeScale)
	case c.SubSteps < 1:
		return fmt.Errorf("sub-steps must be at least 1, got %d", c.SubSteps)
	case !(c.Width > 0) || !(c.Height > 0):
		return fmt.Errorf("arena must have a positive size, got %gx%g", c.Width, c.Height)
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	return c.Spawn().Validate()
}

// Params returns the physical constants described by c.
func (c *Config) Params() ballpit.Params {
	return ballpit.Params{
		Gravity:         mgl64.Vec2{c.GravityX, c.GravityY},
		CellSize:        c.CellSize,
		WallRestitution: c.WallRestitution,
		Restitution:     c.Restitution,
	}
}

// Bounds returns the arena described by c.
func (c *Config) Bounds() ballpit.Bounds {
	return ballpit.Bounds{Width: c.Width, Height: c.Height}
}

// Spawn returns the distribution of spawned bodies described by c.
func (c *Config) Spawn() ballpit.SpawnRange {
	return ballpit.SpawnRange{
		MinRadius: c.MinRadius,
		MaxRadius: c.MaxRadius,
		MaxSpeed:  c.MaxSpeed,
		Mass:      c.Mass,
	}
}

// FrameDt returns the simulated time covered by one frame.
// Time is measured in tenths of a second of wall clock at TimeScale 1.
func (c *Config) FrameDt() float64 {
	return 10 / float64(c.FPS) * c.TimeScale
}
