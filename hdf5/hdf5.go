// Package hdf5 records ballpit simulations to HDF5 files and loads them back.
package hdf5

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/PrincetonUniversity/ballpit"
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/hdf5"
)

// A Dataset stipulates how to generate data and where to store them in the HDF5 file.
type Dataset struct {
	// Name the name of the dataset in the HDF5 file.
	Name string

	// Val is a value of the same concrete type as the underlying type of the data.
	Val interface{}

	// Dims are the dimensions of the data for a single step.
	Dims []int

	// Data is a function that produces the data
	// as a pointer to a slice of row-major concrete values,
	// or a pointer to a single value when Dims is empty.
	Data func(s *ballpit.Simulation) interface{}

	dset   *hdf5.Dataset
	fspace *hdf5.Dataspace
	mspace *hdf5.Dataspace
}

// Config holds the parameters of the HDF5 driver.
type Config struct {
	Output   string     // path of output file
	Steps    int        // total number of steps
	Step     func()     // go to next step
	Datasets []*Dataset // list of datasets

	// Meta is a pointer to a struct whose exported numeric and string fields
	// are saved as attributes of the "config" dataset. May be nil.
	Meta interface{}

	// Progress receives a percentage counter while recording. May be nil.
	Progress io.Writer
}

// Run runs a simulation and saves data to an HDF5 file.
// Datasets are sampled before each step, so the first sample is the initial state.
func Run(s *ballpit.Simulation, conf *Config) (err error) {
	if err := os.MkdirAll(filepath.Dir(conf.Output), 0755); err != nil {
		return err
	}

	file, err := hdf5.CreateFile(conf.Output, hdf5.F_ACC_TRUNC)
	if err != nil {
		return err
	}
	defer checkClose(&err, file)

	if err := saveConfig(file, conf); err != nil {
		return fmt.Errorf("hdf5: saving config: %w", err)
	}

	for _, d := range conf.Datasets {
		if err := d.init(file, conf); err != nil {
			return fmt.Errorf("hdf5: creating dataset %q: %w", d.Name, err)
		}
		defer checkClose(&err, d)
	}

	progress := conf.Progress
	if progress == nil {
		progress = io.Discard
	}
	for k := uint(0); k < uint(conf.Steps); k++ {
		// show progress as percentage
		fmt.Fprintf(progress, "\r% 3d%%", 100*k/uint(conf.Steps))

		for _, d := range conf.Datasets {
			start := make([]uint, len(d.Dims)+1)
			start[0] = k
			if err := d.fspace.SetOffset(start); err != nil {
				return err
			}
			if err := d.dset.WriteSubset(d.Data(s), d.mspace, d.fspace); err != nil {
				return fmt.Errorf("hdf5: writing %q at step %d: %w", d.Name, k, err)
			}
		}

		conf.Step()
	}
	fmt.Fprintf(progress, "\r100%%\n")
	return nil
}

// A Record is what is recorded in the HDF5 file for each body at each step.
// This structure is mapped to a compound datatype in HDF5 so member names are important.
type Record struct {
	ID     uint32
	X      float64
	Y      float64
	VX     float64
	VY     float64
	Radius float64
	Mass   float64
	R      float32
	G      float32
	B      float32
}

// NewRecord returns the record of body b.
func NewRecord(b ballpit.Body) Record {
	return Record{
		ID:     b.ID,
		X:      b.Pos[0],
		Y:      b.Pos[1],
		VX:     b.Vel[0],
		VY:     b.Vel[1],
		Radius: b.Radius,
		Mass:   b.Mass,
		R:      b.Color[0],
		G:      b.Color[1],
		B:      b.Color[2],
	}
}

// Body returns the body described by r.
func (r Record) Body() ballpit.Body {
	return ballpit.Body{
		ID:     r.ID,
		Pos:    mgl64.Vec2{r.X, r.Y},
		Vel:    mgl64.Vec2{r.VX, r.VY},
		Radius: r.Radius,
		Mass:   r.Mass,
		Color:  [3]float32{r.R, r.G, r.B},
	}
}

// encodeRow fills row with bodies. Bodies beyond len(row) are dropped
// and unused records are zeroed.
func encodeRow(row []Record, bodies []ballpit.Body) {
	for i := range row {
		if i < len(bodies) {
			row[i] = NewRecord(bodies[i])
		} else {
			row[i] = Record{}
		}
	}
}

// decodeRow appends the bodies stored in row to dst. A record with a zero
// radius marks the end of the frame, since no valid body has one.
func decodeRow(row []Record, dst []ballpit.Body) []ballpit.Body {
	for _, r := range row {
		if r.Radius == 0 {
			break
		}
		dst = append(dst, r.Body())
	}
	return dst
}

// Bodies returns a dataset named "bodies" holding up to n bodies per step.
func Bodies(n int) *Dataset {
	row := make([]Record, n)
	return &Dataset{
		Name: "bodies",
		Val:  Record{},
		Dims: []int{n},
		Data: func(s *ballpit.Simulation) interface{} {
			encodeRow(row, s.Bodies)
			return &row
		},
	}
}

// Contacts returns a dataset named "contacts" holding the number of
// overlapping pairs found by the previous step.
func Contacts() *Dataset {
	return &Dataset{
		Name: "contacts",
		Val:  0,
		Data: func(s *ballpit.Simulation) interface{} {
			v := s.Stats.Contacts
			return &v
		},
	}
}

// Energy returns a dataset named "energy" holding the total kinetic energy.
func Energy() *Dataset {
	return &Dataset{
		Name: "energy",
		Val:  0.0,
		Data: func(s *ballpit.Simulation) interface{} {
			v := s.KineticEnergy()
			return &v
		},
	}
}

// saveConfig creates a "config" dataset with a null dataspace whose attributes
// reflect the whole configuration plus some other appropriate metadata.
func saveConfig(file *hdf5.File, conf *Config) (err error) {
	null, err := hdf5.CreateDataspace(hdf5.S_NULL)
	if err != nil {
		return err
	}
	defer checkClose(&err, null)

	anytype, err := hdf5.NewDatatypeFromValue(0)
	if err != nil {
		return err
	}
	defer checkClose(&err, anytype)

	dset, err := file.CreateDataset("config", anytype, null)
	if err != nil {
		return err
	}
	defer checkClose(&err, dset)

	dtype, err := hdf5.NewDatatypeFromValue("")
	if err != nil {
		return err
	}
	defer checkClose(&err, dtype)

	scalar, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer checkClose(&err, scalar)

	attr, err := dset.CreateAttribute("Time", dtype, scalar)
	if err != nil {
		return err
	}
	defer checkClose(&err, attr)

	now := time.Now().String()
	if err := attr.Write(&now, dtype); err != nil {
		return err
	}

	if conf.Meta == nil {
		return nil
	}
	v := reflect.ValueOf(conf.Meta).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Type().Field(i)
		if !f.IsExported() || !storable(f.Type.Kind()) {
			continue
		}
		err := func() (err error) {
			dtype, err := hdf5.NewDatatypeFromValue(v.Field(i).Interface())
			if err != nil {
				return err
			}
			defer checkClose(&err, dtype)

			attr, err := dset.CreateAttribute(f.Name, dtype, scalar)
			if err != nil {
				return err
			}
			defer checkClose(&err, attr)

			return attr.Write(v.Field(i).Addr().Interface(), dtype)
		}()
		if err != nil {
			return fmt.Errorf("attribute %s: %w", f.Name, err)
		}
	}

	return nil
}

// storable reports whether values of kind k are saved as config attributes.
func storable(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	}
	return false
}

// init creates the dataset and its dataspaces.
func (d *Dataset) init(file *hdf5.File, conf *Config) (err error) {
	dtype, err := hdf5.NewDatatypeFromValue(d.Val)
	if err != nil {
		return err
	}
	defer checkClose(&err, dtype)

	udims := make([]uint, len(d.Dims)+1)
	udims[0] = uint(conf.Steps)
	for i, n := range d.Dims {
		udims[i+1] = uint(n)
	}

	d.fspace, err = hdf5.CreateSimpleDataspace(udims, nil)
	if err != nil {
		return err
	}

	start := make([]uint, len(udims))
	count := make([]uint, len(udims))
	copy(count, udims)
	count[0] = 1

	if err := d.fspace.SelectHyperslab(start, nil, count, nil); err != nil {
		checkClose(&err, d.fspace)
		return err
	}

	if len(d.Dims) == 0 {
		d.mspace, err = hdf5.CreateDataspace(hdf5.S_SCALAR)
	} else {
		d.mspace, err = hdf5.CreateSimpleDataspace(udims[1:], nil)
	}
	if err != nil {
		checkClose(&err, d.fspace)
		return err
	}

	d.dset, err = file.CreateDataset(d.Name, dtype, d.fspace)
	if err != nil {
		checkClose(&err, d.fspace)
		checkClose(&err, d.mspace)
	}

	return err
}

// Close closes the HDF5 dataset and Dataspaces.
func (d *Dataset) Close() error {
	if err := d.dset.Close(); err != nil {
		return err
	}
	if err := d.mspace.Close(); err != nil {
		return err
	}
	if err := d.fspace.Close(); err != nil {
		return err
	}
	return nil
}

// checkClose checks for errors in deferred calls.
func checkClose(err *error, c io.Closer) {
	if cerr := c.Close(); *err == nil {
		*err = cerr
	}
}
