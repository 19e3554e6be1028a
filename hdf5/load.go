package hdf5

import (
	"fmt"
	"io"

	"github.com/PrincetonUniversity/ballpit"
	"gonum.org/v1/hdf5"
)

// A Loader reads back the frames of a dataset written with Bodies.
type Loader struct {
	frame  uint     // next frame to read
	frames uint     // number of recorded frames
	row    []Record // one frame, reused

	file   *hdf5.File
	dset   *hdf5.Dataset
	fspace *hdf5.Dataspace
	mspace *hdf5.Dataspace
}

// NewLoader opens a bodies dataset in an HDF5 file.
func NewLoader(path, dataset string) (l *Loader, err error) {
	l = new(Loader)

	// on failure, release whatever was opened so far
	var opened []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(opened) - 1; i >= 0; i-- {
			checkClose(&err, opened[i])
		}
		l = nil
	}()

	if l.file, err = hdf5.OpenFile(path, hdf5.F_ACC_RDONLY); err != nil {
		return nil, err
	}
	opened = append(opened, l.file)

	if l.dset, err = l.file.OpenDataset(dataset); err != nil {
		return nil, err
	}
	opened = append(opened, l.dset)

	l.fspace = l.dset.Space()
	opened = append(opened, l.fspace)

	dims, _, err := l.fspace.SimpleExtentDims()
	switch {
	case err != nil:
		return nil, err
	case len(dims) != 2:
		return nil, fmt.Errorf("hdf5: dataset %q has %d dimensions, want 2 (frames, bodies)", dataset, len(dims))
	case dims[0] == 0:
		return nil, fmt.Errorf("hdf5: dataset %q has no frames", dataset)
	}
	l.frames = dims[0]

	if l.mspace, err = hdf5.CreateSimpleDataspace(dims[1:], nil); err != nil {
		return nil, err
	}
	opened = append(opened, l.mspace)

	// select a single frame, moved by SetOffset on each read
	if err = l.fspace.SelectHyperslab([]uint{0, 0}, nil, []uint{1, dims[1]}, nil); err != nil {
		return nil, err
	}
	l.row = make([]Record, dims[1])
	return l, nil
}

// Len returns the number of recorded frames.
func (l *Loader) Len() int {
	return int(l.frames)
}

// Seek makes frame k the next one returned by Load.
func (l *Loader) Seek(k int) error {
	if k < 0 || uint(k) >= l.frames {
		return fmt.Errorf("hdf5: frame %d out of range [0, %d)", k, l.frames)
	}
	l.frame = uint(k)
	return nil
}

// Load replaces the contents of bodies with the next frame.
// After the last frame it starts over from the first.
func (l *Loader) Load(bodies *[]ballpit.Body) error {
	if err := l.fspace.SetOffset([]uint{l.frame, 0}); err != nil {
		return err
	}
	if err := l.dset.ReadSubset(&l.row, l.mspace, l.fspace); err != nil {
		return fmt.Errorf("hdf5: reading frame %d: %w", l.frame, err)
	}
	l.frame = (l.frame + 1) % l.frames
	*bodies = decodeRow(l.row, (*bodies)[:0])
	return nil
}

// Close releases the file and its dataspaces.
func (l *Loader) Close() (err error) {
	defer checkClose(&err, l.file)
	defer checkClose(&err, l.dset)
	defer checkClose(&err, l.fspace)
	return l.mspace.Close()
}
