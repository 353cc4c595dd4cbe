// seed reads crossings to import from YAML files of the form:
//
//	crossings:
//	  - node_id: node/2847133
//	    latitude: 49.6116
//	    longitude: 6.1319
package seed

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fedus/safe-crossing-cf/internal/domain/crossing"
)

type file struct {
	Crossings []entry `yaml:"crossings"`
}

type entry struct {
	NodeId    string   `yaml:"node_id"`
	Latitude  *float64 `yaml:"latitude,omitempty"`
	Longitude *float64 `yaml:"longitude,omitempty"`
}

// Load reads and parses the seed file at path
func Load(path string) ([]crossing.NewCrossing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse rejects unknown fields, invalid node ids, half-given locations and duplicates
func Parse(data []byte) ([]crossing.NewCrossing, error) {
	var f file
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[crossing.Key]struct{}, len(f.Crossings))
	crossings := make([]crossing.NewCrossing, 0, len(f.Crossings))
	for i, e := range f.Crossings {
		nodeId, err := crossing.NodeIdFromString(e.NodeId)
		if err != nil {
			return nil, InvalidEntry{Index: i, Underlying: err}
		}
		if _, dup := seen[nodeId.Key()]; dup {
			return nil, InvalidEntry{Index: i, Underlying: fmt.Errorf("duplicate crossing [%s]", nodeId.Key())}
		}
		seen[nodeId.Key()] = struct{}{}

		newCrossing := crossing.NewCrossing{NodeId: nodeId}
		switch {
		case e.Latitude != nil && e.Longitude != nil:
			newCrossing.Location = &crossing.Location{Latitude: *e.Latitude, Longitude: *e.Longitude}
		case e.Latitude != nil || e.Longitude != nil:
			return nil, InvalidEntry{Index: i, Underlying: fmt.Errorf("latitude and longitude go together")}
		}
		crossings = append(crossings, newCrossing)
	}
	return crossings, nil
}

// <-- Errors

type InvalidEntry struct {
	Index      int
	Underlying error
}

func (e InvalidEntry) Error() string {
	return fmt.Sprintf("Invalid seed entry at index [%d]: %v", e.Index, e.Underlying)
}

func (e InvalidEntry) Unwrap() error {
	return e.Underlying
}

//     Errors -->
