package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/viacare/risk-assessor/internal/domain"
)

// visitsFile is the document accepted by assess. Either a bare list of visits
// or a mapping with a "visits" key; JSON documents parse as YAML too.
type visitsFile struct {
	Visits []map[string]float64 `yaml:"visits"`
}

// loadVisits reads a visits file. Features a visit leaves out take their
// schema defaults; unknown features are rejected.
func loadVisits(path string) (domain.ObservationSequence, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open visits file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read visits: %w", err)
	}
	return parseVisits(data)
}

func parseVisits(data []byte) (domain.ObservationSequence, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse visits: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, domain.ErrEmptySequence
	}

	var raw []map[string]float64
	switch doc := root.Content[0]; doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode visits: %w", err)
		}
	case yaml.MappingNode:
		var file visitsFile
		if err := doc.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode visits: %w", err)
		}
		raw = file.Visits
	default:
		return nil, fmt.Errorf("visits must be a list or a mapping with a visits key")
	}
	if len(raw) == 0 {
		return nil, domain.ErrEmptySequence
	}

	buffer := domain.NewVisitBuffer()
	for i, values := range raw {
		index := 0
		if i > 0 {
			index = buffer.Add()
		}
		for key, value := range values {
			if err := buffer.Set(index, domain.FeatureKey(key), value); err != nil {
				return nil, fmt.Errorf("visit #%d: %w", i+1, err)
			}
		}
	}
	return buffer.Snapshot(), nil
}
