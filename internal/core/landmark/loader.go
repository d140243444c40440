package landmark

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// entry is the per-landmark shape. Pointers distinguish a missing field from
// an explicit zero.
type entry struct {
	X *float64 `yaml:"x"`
	Y *float64 `yaml:"y"`
}

// LoadFile reads a landmark document from path. See Load for the format.
func LoadFile(path string) (*Store, error) {
	if path == "" {
		return nil, &ConfigError{Source: "<unset>", Err: errors.New("no landmark file configured")}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	defer f.Close()
	return load(f, path)
}

// Load reads a document mapping landmark ids to coordinates:
//
//	A: {x: 5.0, y: 0.0}
//	B:
//	  x: 1.0
//	  y: 2.0
//
// Document order is kept. JSON documents of the same shape are accepted. An
// empty document yields an empty store.
func Load(r io.Reader) (*Store, error) {
	return load(r, "<reader>")
}

func load(r io.Reader, source string) (*Store, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return emptyStore(), nil
		}
		return nil, &ConfigError{Source: source, Err: err}
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return emptyStore(), nil
		}
		root = root.Content[0]
	}
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return emptyStore(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Source: source, Line: root.Line, Err: errNotMapping}
	}

	s := &Store{
		landmarks: make([]Landmark, 0, len(root.Content)/2),
		index:     make(map[string]int, len(root.Content)/2),
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, &ConfigError{Source: source, Line: key.Line, Err: errors.New("landmark id must be a scalar")}
		}
		lm, err := decodeEntry(key.Value, val)
		if err == nil {
			err = s.add(lm)
		}
		if err != nil {
			return nil, &ConfigError{Source: source, Landmark: key.Value, Line: key.Line, Err: err}
		}
	}
	s.seal()
	return s, nil
}

func decodeEntry(id string, node *yaml.Node) (Landmark, error) {
	var e entry
	if err := node.Decode(&e); err != nil {
		return Landmark{}, err
	}
	switch {
	case e.X == nil:
		return Landmark{}, fmt.Errorf("%w: x", errMissingField)
	case e.Y == nil:
		return Landmark{}, fmt.Errorf("%w: y", errMissingField)
	}
	lm := Landmark{ID: id}
	lm.Position.X = *e.X
	lm.Position.Y = *e.Y
	return lm, nil
}

func emptyStore() *Store {
	s := &Store{index: map[string]int{}}
	s.seal()
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
