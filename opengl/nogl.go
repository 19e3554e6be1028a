//go:build nogl
// +build nogl

package opengl

import (
	"fmt"
	"os"

	"github.com/PrincetonUniversity/ballpit"
)

// Config holds the parameters of the OpenGL driver.
type Config struct {
	Title     string
	MaxBodies int
	Step      func()
	Reset     func()
	ShowGrid  bool
	ShowVel   bool
	Attract   float64
}

// Run returns an error explaining that OpenGL support is disabled.
func Run(s *ballpit.Simulation, conf *Config) error {
	return fmt.Errorf("%s was built without OpenGL support\n"+
		"You must specify an output file ('output' key) or a listen address ('listen' key) in the config file.", os.Args[0])
}
