package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goffincedric/SimpleAI/internal/genotype"
)

// GraphFileExt is the only extension accepted for graph files.
const GraphFileExt = ".bin"

// ErrSerialization wraps every failure to read or write a graph file. The
// message always names the offending path.
var ErrSerialization = errors.New("graph serialization failed")

type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSerialization, e.Path, e.Err)
}

func (e *SerializationError) Unwrap() []error {
	return []error{ErrSerialization, e.Err}
}

func serializationError(path string, err error) error {
	return &SerializationError{Path: path, Err: err}
}

// GraphFileName is the file name of the population member at index.
func GraphFileName(index int) string {
	return fmt.Sprintf("graph-%d%s", index, GraphFileExt)
}

// SaveGraph writes g to path. The file is replaced atomically.
func SaveGraph(path string, g *genotype.Graph) error {
	if filepath.Ext(path) != GraphFileExt {
		return serializationError(path, fmt.Errorf("extension must be %s", GraphFileExt))
	}
	data, err := EncodeGraph(g.Record(CurrentSchemaVersion, CurrentCodecVersion))
	if err != nil {
		return serializationError(path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".graph-*.tmp")
	if err != nil {
		return serializationError(path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return serializationError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return serializationError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return serializationError(path, err)
	}
	return nil
}

// LoadGraph reads a graph file and rebuilds the graph with every invariant
// rechecked.
func LoadGraph(path string) (*genotype.Graph, error) {
	if filepath.Ext(path) != GraphFileExt {
		return nil, serializationError(path, fmt.Errorf("extension must be %s", GraphFileExt))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serializationError(path, err)
	}
	rec, err := DecodeGraph(data)
	if err != nil {
		return nil, serializationError(path, err)
	}
	g, err := genotype.FromRecord(rec)
	if err != nil {
		return nil, serializationError(path, err)
	}
	return g, nil
}

// SavePopulationDir writes graphs as graph-0.bin .. graph-<n-1>.bin and
// removes higher-numbered leftovers from earlier, larger populations.
func SavePopulationDir(dir string, graphs []*genotype.Graph) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return serializationError(dir, err)
	}
	for i, g := range graphs {
		if err := SaveGraph(filepath.Join(dir, GraphFileName(i)), g); err != nil {
			return err
		}
	}
	for i := len(graphs); ; i++ {
		path := filepath.Join(dir, GraphFileName(i))
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return serializationError(path, err)
		}
	}
}

// LoadPopulationDir loads graph-0.bin .. graph-<n-1>.bin. With n <= 0 it
// loads every consecutive file starting at graph-0.bin.
func LoadPopulationDir(dir string, n int) ([]*genotype.Graph, error) {
	if n <= 0 {
		n = CountPopulationDir(dir)
		if n == 0 {
			return nil, serializationError(filepath.Join(dir, GraphFileName(0)), os.ErrNotExist)
		}
	}
	graphs := make([]*genotype.Graph, 0, n)
	for i := 0; i < n; i++ {
		g, err := LoadGraph(filepath.Join(dir, GraphFileName(i)))
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// CountPopulationDir counts consecutive graph files starting at index 0.
func CountPopulationDir(dir string) int {
	n := 0
	for {
		info, err := os.Stat(filepath.Join(dir, GraphFileName(n)))
		if err != nil || info.IsDir() {
			return n
		}
		n++
	}
}
