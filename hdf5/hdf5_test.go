package hdf5

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/PrincetonUniversity/ballpit"
)

type meta struct {
	Bodies   int
	CellSize float64
	Name     string
	Grid     bool // not storable, skipped
}

func TestRecordAndReplay(t *testing.T) {
	const (
		steps = 6
		rows  = 12
	)
	s := ballpit.New(ballpit.Bounds{Width: 300, Height: 200}, ballpit.DefaultParams)
	if err := s.Spawn(10, ballpit.DefaultSpawn, rand.New(rand.NewSource(3))); err != nil {
		t.Fatal(err)
	}

	var want [][]ballpit.Body
	snapshot := func() {
		want = append(want, append([]ballpit.Body(nil), s.Bodies...))
	}
	snapshot()

	out := filepath.Join(t.TempDir(), "runs", "pit.h5")
	err := Run(s, &Config{
		Output:   out,
		Steps:    steps,
		Step:     func() { s.Step(0.5); snapshot() },
		Datasets: []*Dataset{Bodies(rows), Contacts(), Energy()},
		Meta:     &meta{Bodies: 10, CellSize: 55, Name: "test", Grid: true},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	l, err := NewLoader(out, "bodies")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()
	if l.Len() != steps {
		t.Fatalf("expected %d steps, got=%d", steps, l.Len())
	}

	var got []ballpit.Body
	for k := 0; k < steps+1; k++ {
		if err := l.Load(&got); err != nil {
			t.Fatalf("load step %d: %v", k, err)
		}
		exp := want[k%steps]
		if len(got) != len(exp) {
			t.Fatalf("step %d: expected %d bodies, got=%d", k, len(exp), len(got))
		}
		for i := range exp {
			if got[i] != exp[i] {
				t.Fatalf("step %d body %d: got %+v, want %+v", k, i, got[i], exp[i])
			}
		}
	}
}

func TestNewLoaderMissingFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.h5"), "bodies"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRowEncoding(t *testing.T) {
	bodies := []ballpit.Body{
		{ID: 0, Radius: 3, Mass: 1, Color: [3]float32{1, 0, 0}},
		{ID: 1, Radius: 4, Mass: 2},
		{ID: 2, Radius: 5, Mass: 3},
	}

	// stale records past the bodies are cleared
	row := []Record{{}, {}, {}, {Radius: 9}, {Radius: 9}}
	encodeRow(row, bodies)
	if got := decodeRow(row, nil); len(got) != 3 || got[0] != bodies[0] || got[2] != bodies[2] {
		t.Fatalf("round trip failed: %+v", got)
	}

	// extra bodies are dropped
	short := make([]Record, 2)
	encodeRow(short, bodies)
	if got := decodeRow(short, nil); len(got) != 2 || got[1] != bodies[1] {
		t.Fatalf("truncation failed: %+v", got)
	}

	// decoding reuses dst
	dst := make([]ballpit.Body, 0, 8)
	if got := decodeRow(row, dst); &got[0] != &dst[:1][0] {
		t.Fatal("expected decodeRow to append into dst")
	}
}

func TestLoaderSeek(t *testing.T) {
	s := ballpit.New(ballpit.Bounds{Width: 300, Height: 200}, ballpit.DefaultParams)
	if err := s.Spawn(4, ballpit.DefaultSpawn, rand.New(rand.NewSource(9))); err != nil {
		t.Fatal(err)
	}
	var frames [][]ballpit.Body
	out := filepath.Join(t.TempDir(), "seek.h5")
	err := Run(s, &Config{
		Output:   out,
		Steps:    3,
		Step:     func() { s.Step(0.5) },
		Datasets: []*Dataset{Bodies(4)},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	l, err := NewLoader(out, "bodies")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	var got []ballpit.Body
	for k := 0; k < 3; k++ {
		if err := l.Load(&got); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, append([]ballpit.Body(nil), got...))
	}

	if err := l.Seek(1); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(&got); err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if got[i] != frames[1][i] {
			t.Fatalf("body %d after seek: got %+v, want %+v", i, got[i], frames[1][i])
		}
	}
	if err := l.Seek(3); err == nil {
		t.Fatal("expected error seeking past the last frame")
	}
	if err := l.Seek(-1); err == nil {
		t.Fatal("expected error seeking before the first frame")
	}
}

func TestNewLoaderWrongShape(t *testing.T) {
	s := ballpit.New(ballpit.Bounds{Width: 300, Height: 200}, ballpit.DefaultParams)
	out := filepath.Join(t.TempDir(), "energy.h5")
	if err := Run(s, &Config{Output: out, Steps: 2, Step: func() {}, Datasets: []*Dataset{Energy()}}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := NewLoader(out, "energy"); err == nil {
		t.Fatal("expected error loading a scalar dataset as bodies")
	}
}
