package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TeamEntry is one franchise: its short code, full name, and any other
// spellings the feed has been seen to use for it.
type TeamEntry struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type TeamRegistryFile struct {
	Teams []TeamEntry `yaml:"teams"`
}

func LoadTeams(path string) (TeamRegistryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TeamRegistryFile{}, fmt.Errorf("read teams: %w", err)
	}
	return ParseTeams(data)
}

func ParseTeams(data []byte) (TeamRegistryFile, error) {
	var f TeamRegistryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return TeamRegistryFile{}, fmt.Errorf("parse teams: %w", err)
	}
	for i, t := range f.Teams {
		if t.Code == "" {
			return TeamRegistryFile{}, fmt.Errorf("parse teams: entry %d has no code", i)
		}
	}
	return f, nil
}

// ByCode returns the entry for a team code.
func (f TeamRegistryFile) ByCode(code string) (TeamEntry, bool) {
	for _, t := range f.Teams {
		if t.Code == code {
			return t, true
		}
	}
	return TeamEntry{}, false
}
