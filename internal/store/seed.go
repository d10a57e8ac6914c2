package store

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jeefy/pybot/internal/models"
)

//go:embed corpus.yaml
var builtinCorpus []byte

type corpusFile struct {
	Patterns []models.PatternEntry `yaml:"patterns"`
}

// BuiltinCorpus returns the answers shipped with the binary, in matching order.
func BuiltinCorpus() ([]models.PatternEntry, error) {
	return parseCorpus(builtinCorpus)
}

// LoadCorpus reads a corpus file with the same layout as the embedded one.
func LoadCorpus(path string) ([]models.PatternEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return parseCorpus(data)
}

func parseCorpus(data []byte) ([]models.PatternEntry, error) {
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	for i := range f.Patterns {
		p := &f.Patterns[i]
		if p.Pattern == "" || p.Response == "" {
			return nil, fmt.Errorf("corpus entry %d: %w", i+1, ErrInvalidPattern)
		}
		if p.Category == "" {
			p.Category = "general"
		}
		p.Source = models.SourceBuiltin
	}
	return f.Patterns, nil
}
