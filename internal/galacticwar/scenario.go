package galacticwar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is the on-disk form of a campaign scenario. GML and JSON files
// both parse into it; saves always write JSON.
type Document struct {
	Label string    `json:"label"`
	Nodes []NodeDoc `json:"node"`
	Edges []EdgeDoc `json:"edge"`
}

// NodeDoc is one planet as stored in a scenario file.
type NodeDoc struct {
	ID           int                `json:"id"`
	Label        string             `json:"label"`
	Map          string             `json:"map,omitempty"`
	Mod          string             `json:"mod,omitempty"`
	Size         float64            `json:"size,omitempty"`
	Score        map[string]float64 `json:"score,omitempty"`
	CapitalOf    string             `json:"capital_of,omitempty"`
	ControlledBy string             `json:"controlled_by,omitempty"`
	Belligerents []BelligerentDoc   `json:"belligerents,omitempty"`
}

// BelligerentDoc is one player's accumulated contribution on a planet.
type BelligerentDoc struct {
	PlayerID int     `json:"player_id"`
	Faction  string  `json:"faction"`
	Score    float64 `json:"score"`
}

// EdgeDoc is one jump-gate between two planets.
type EdgeDoc struct {
	Source int `json:"source"`
	Target int `json:"target"`
}

// LoadDocument reads a scenario file, dispatching on extension: .gml files
// use the legacy reader, everything else is JSON.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	var doc Document
	if strings.EqualFold(filepath.Ext(path), ".gml") {
		gmlDoc, err := ParseGML(f)
		if err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
		doc = *gmlDoc
	} else {
		if err := json.NewDecoder(f).Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
	}
	if doc.Label == "" {
		doc.Label = filepath.Base(path)
	}
	return &doc, nil
}

// SaveDocument writes the scenario as JSON, replacing the target atomically
// via a temp file and rename.
func SaveDocument(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	tmp := path + ".temp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace scenario: %w", err)
	}
	return nil
}

// ListScenarios enumerates the scenario files in a directory, sorted by name.
func ListScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".gml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// NextScenario picks the scenario following current in the rotation,
// wrapping around. An unknown current name restarts at initial.
func NextScenario(dir, current, initial string) (string, error) {
	names, err := ListScenarios(dir)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no scenarios in %s", dir)
	}
	for i, name := range names {
		if name == current {
			return names[(i+1)%len(names)], nil
		}
	}
	return initial, nil
}
