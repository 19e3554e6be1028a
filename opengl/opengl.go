//go:build !nogl
// +build !nogl

package opengl

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/PrincetonUniversity/ballpit"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// Config holds the parameters of the OpenGL driver.
type Config struct {
	Title     string  // window title
	MaxBodies int     // maximum number of bodies drawn
	Step      func()  // go to next step
	Reset     func()  // respawn bodies, may be nil
	ShowGrid  bool    // draw grid overlay at start
	ShowVel   bool    // draw velocity lines at start
	Attract   float64 // velocity gained per frame toward the cursor, 0 disables
}

// Run runs an interactive simulation in an OpenGL window sized to the arena.
func Run(s *ballpit.Simulation, conf *Config) error {
	// init GLFW and OpenGL
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Samples, 4)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	title := conf.Title
	if title == "" {
		title = "Ballpit"
	}
	width, height := int(math.Ceil(s.Bounds.Width)), int(math.Ceil(s.Bounds.Height))
	w, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return err
	}
	w.MakeContextCurrent()
	glfw.SwapInterval(1)

	if err := gl.Init(); err != nil {
		return err
	}

	// set background color and enable alpha blending
	gl.Enable(gl.BLEND)
	gl.Enable(gl.PROGRAM_POINT_SIZE)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.ClearColor(0.08, 0.08, 0.1, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	w.SwapBuffers()

	// initialize OpenGL objects
	d, err := newDisplay(max(conf.MaxBodies, len(s.Bodies)))
	if err != nil {
		return err
	}
	fw, _ := w.GetFramebufferSize()
	d.setProjection(s.Bounds, float32(fw)/float32(width))

	var quit, step bool
	var pause bool
	grid := conf.ShowGrid
	vel := conf.ShowVel
	w.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			quit = true
		}
		if key == glfw.KeySpace && action == glfw.Press {
			pause = !pause
		}
		if key == glfw.KeyRight && (action == glfw.Press || action == glfw.Repeat) {
			if pause {
				pause = false
				step = true
			}
		}
		if key == glfw.KeyR && action == glfw.Press && conf.Reset != nil {
			conf.Reset()
		}
		if key == glfw.KeyG && action == glfw.Press {
			grid = !grid
		}
		if key == glfw.KeyV && action == glfw.Press {
			vel = !vel
		}
	})

	for !(quit || w.ShouldClose()) {
		if conf.Attract != 0 && w.GetMouseButton(glfw.MouseButtonLeft) == glfw.Press {
			x, y := w.GetCursorPos()
			s.Attract(mgl64.Vec2{
				x * s.Bounds.Width / float64(width),
				y * s.Bounds.Height / float64(height),
			}, conf.Attract)
		}
		if step {
			pause = true
			step = false
			conf.Step()
		}
		if !pause {
			conf.Step()
		}
		d.draw(s, grid, vel)
		w.SwapBuffers()
		glfw.PollEvents()
	}
	return nil
}

// vertex is the layout of a body in the disc buffer.
type vertex struct {
	Pos    [2]float32
	Radius float32
	Color  [3]float32
}

// flatVertex is the layout of the grid overlay buffers.
type flatVertex struct {
	Pos   [2]float32
	Color [4]float32
}

// display contains all the OpenGL objects required to display the simulation.
type display struct {
	max  int // capacity of the disc buffer
	prog struct {
		disc uint32
		flat uint32
	}
	vao struct {
		disc uint32
		flat uint32
	}
	buf struct {
		disc uint32 // body states
		flat uint32 // grid lines, occupied cells and velocity lines
	}
	uni struct {
		discProj  int32
		discScale int32
		flatProj  int32
	}
	overlay []flatVertex // reused between frames
}

// setProjection maps arena coordinates to clip space with y pointing down.
func (d *display) setProjection(b ballpit.Bounds, scale float32) {
	proj := mgl32.Ortho2D(0, float32(b.Width), float32(b.Height), 0)
	gl.UseProgram(d.prog.disc)
	gl.UniformMatrix4fv(d.uni.discProj, 1, false, &proj[0])
	gl.Uniform1f(d.uni.discScale, scale)
	gl.UseProgram(d.prog.flat)
	gl.UniformMatrix4fv(d.uni.flatProj, 1, false, &proj[0])
}

// draw updates the OpenGL buffers and draws the arena on screen.
func (d *display) draw(s *ballpit.Simulation, grid, vel bool) {
	gl.Clear(gl.COLOR_BUFFER_BIT)
	if grid {
		d.drawOverlay(s, true, false)
	}
	n := d.updateBodies(s.Bodies)
	gl.UseProgram(d.prog.disc)
	gl.BindVertexArray(d.vao.disc)
	gl.DrawArrays(gl.POINTS, 0, int32(n))
	if vel {
		// on top of the discs
		d.drawOverlay(s, false, true)
	}
}

// updateBodies updates the OpenGL buffer containing body states
// and returns the number of bodies written.
func (d *display) updateBodies(bodies []ballpit.Body) int {
	n := min(len(bodies), d.max)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.disc)
	const size = unsafe.Sizeof(vertex{})
	q := (uintptr)(gl.MapBuffer(gl.ARRAY_BUFFER, gl.WRITE_ONLY))
	if q != 0 {
		for i, b := range bodies[:n] {
			*(*vertex)(unsafe.Pointer(q + uintptr(i)*size)) = vertex{
				Pos:    [2]float32{float32(b.Pos[0]), float32(b.Pos[1])},
				Radius: float32(b.Radius),
				Color:  b.Color,
			}
		}
		gl.UnmapBuffer(gl.ARRAY_BUFFER)
	}
	return n
}

// velocityScale is the time span drawn by velocity lines.
const velocityScale = 2

// overlay appends the debug overlay to v and returns it along with the
// number of leading triangle vertices; the rest are line vertices.
// The grid part shows occupied cells, tinted by how many bodies they hold,
// and cell lines. The velocity part joins every body to where it would be
// after velocityScale units of time.
func overlay(v []flatVertex, s *ballpit.Simulation, grid, velocity bool) ([]flatVertex, int) {
	g := s.Grid()
	c := float32(g.CellSize())

	if grid {
		g.Each(func(cell ballpit.Cell, members []int) {
			a := min(0.08*float32(len(members)), 0.5)
			col := [4]float32{0.3, 0.6, 1, a}
			x0, y0 := float32(cell.X)*c, float32(cell.Y)*c
			x1, y1 := x0+c, y0+c
			v = append(v,
				flatVertex{[2]float32{x0, y0}, col}, flatVertex{[2]float32{x1, y0}, col}, flatVertex{[2]float32{x1, y1}, col},
				flatVertex{[2]float32{x0, y0}, col}, flatVertex{[2]float32{x1, y1}, col}, flatVertex{[2]float32{x0, y1}, col},
			)
		})
	}
	quads := len(v)

	if grid {
		line := [4]float32{1, 1, 1, 0.12}
		w, h := float32(s.Bounds.Width), float32(s.Bounds.Height)
		for x := float32(0); x <= w; x += c {
			v = append(v, flatVertex{[2]float32{x, 0}, line}, flatVertex{[2]float32{x, h}, line})
		}
		for y := float32(0); y <= h; y += c {
			v = append(v, flatVertex{[2]float32{0, y}, line}, flatVertex{[2]float32{w, y}, line})
		}
	}

	if velocity {
		green := [4]float32{0, 1, 0, 1}
		for _, b := range s.Bodies {
			end := b.Pos.Add(b.Vel.Mul(velocityScale))
			v = append(v,
				flatVertex{[2]float32{float32(b.Pos[0]), float32(b.Pos[1])}, green},
				flatVertex{[2]float32{float32(end[0]), float32(end[1])}, green},
			)
		}
	}
	return v, quads
}

// drawOverlay uploads and draws the debug overlay.
func (d *display) drawOverlay(s *ballpit.Simulation, grid, velocity bool) {
	v, quads := overlay(d.overlay[:0], s, grid, velocity)
	d.overlay = v
	if len(v) == 0 {
		return
	}

	gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.flat)
	gl.BufferData(gl.ARRAY_BUFFER, len(v)*int(unsafe.Sizeof(flatVertex{})), gl.Ptr(&v[0]), gl.STREAM_DRAW)

	gl.UseProgram(d.prog.flat)
	gl.BindVertexArray(d.vao.flat)
	if quads > 0 {
		gl.DrawArrays(gl.TRIANGLES, 0, int32(quads))
	}
	if len(v) > quads {
		gl.DrawArrays(gl.LINES, int32(quads), int32(len(v)-quads))
	}
}

// newDisplay compiles shaders and initializes a display for up to capacity bodies.
func newDisplay(capacity int) (*display, error) {
	d := &display{max: capacity}

	// compile and link shaders
	var err error
	d.prog.disc, err = makeProg([]shader{
		{"Vertex", "disc.vert", gl.CreateShader(gl.VERTEX_SHADER)},
		{"Fragment", "disc.frag", gl.CreateShader(gl.FRAGMENT_SHADER)},
	})
	if err != nil {
		return nil, err
	}
	d.prog.flat, err = makeProg([]shader{
		{"Vertex", "flat.vert", gl.CreateShader(gl.VERTEX_SHADER)},
		{"Fragment", "flat.frag", gl.CreateShader(gl.FRAGMENT_SHADER)},
	})
	if err != nil {
		return nil, err
	}

	// uniform location cannot be specified in the shaders in OpenGL 3.3 core
	d.uni.discProj = gl.GetUniformLocation(d.prog.disc, gl.Str("proj\x00"))
	d.uni.discScale = gl.GetUniformLocation(d.prog.disc, gl.Str("scale\x00"))
	d.uni.flatProj = gl.GetUniformLocation(d.prog.flat, gl.Str("proj\x00"))

	// attribute locations are specified in the shaders with layout(location=n)
	gl.GenVertexArrays(1, &d.vao.disc)
	gl.BindVertexArray(d.vao.disc)

	gl.GenBuffers(1, &d.buf.disc)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.disc)
	gl.BufferData(gl.ARRAY_BUFFER, max(capacity, 1)*int(unsafe.Sizeof(vertex{})), nil, gl.STREAM_DRAW)

	const n = int32(unsafe.Sizeof(vertex{}))

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, n, gl.PtrOffset(int(unsafe.Offsetof(vertex{}.Pos))))

	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 1, gl.FLOAT, false, n, gl.PtrOffset(int(unsafe.Offsetof(vertex{}.Radius))))

	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 3, gl.FLOAT, false, n, gl.PtrOffset(int(unsafe.Offsetof(vertex{}.Color))))

	gl.GenVertexArrays(1, &d.vao.flat)
	gl.BindVertexArray(d.vao.flat)

	gl.GenBuffers(1, &d.buf.flat)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.buf.flat)

	const m = int32(unsafe.Sizeof(flatVertex{}))

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, m, gl.PtrOffset(int(unsafe.Offsetof(flatVertex{}.Pos))))

	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 4, gl.FLOAT, false, m, gl.PtrOffset(int(unsafe.Offsetof(flatVertex{}.Color))))

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	return d, nil
}

// A shader wraps an OpenGL shader.
type shader struct {
	name   string
	path   string
	shader uint32
}

// makeProg builds OpenGL programs.
func makeProg(shaders []shader) (uint32, error) {
	var fail bool
	for _, s := range shaders {
		src := bindata[s.path] + "\x00"
		str, free := gl.Strs(src)
		gl.ShaderSource(s.shader, 1, str, nil)
		free()
		gl.CompileShader(s.shader)
		var status int32
		gl.GetShaderiv(s.shader, gl.COMPILE_STATUS, &status)
		if status != gl.TRUE {
			var n int32
			gl.GetShaderiv(s.shader, gl.INFO_LOG_LENGTH, &n)
			log := make([]uint8, n)
			gl.GetShaderInfoLog(s.shader, n, &n, &log[0])
			fmt.Printf("### %s shader compilation error: %s ###\n\n%s\n\n", s.name, s.path, gl.GoStr(&log[0]))
			fail = true
			gl.DeleteShader(s.shader)
		}
	}
	if fail {
		return 0, fmt.Errorf("ballpit: GLSL errors")
	}
	prog := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(prog, s.shader)
	}
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status != gl.TRUE {
		return 0, fmt.Errorf("ballpit: shader program failed to link")
	}
	return prog, nil
}
