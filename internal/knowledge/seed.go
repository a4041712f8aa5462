package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Entries []SeedEntry `yaml:"entries"`
}

// LoadSeedFile reads seed entries from a YAML (or JSON) file of the form
//
//	entries:
//	  - question: what are your hours
//	    answer: Monday-Saturday 9AM-7PM
func LoadSeedFile(path string) ([]SeedEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return f.Entries, nil
}
