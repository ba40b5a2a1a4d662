package source

import (
	"context"
	"fmt"
	"os"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

// FileSource re-reads the limits section of the service config file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Fetch(context.Context) (LimitsPayload, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return LimitsPayload{}, err
	}
	cfg, err := config.Parse(b)
	if err != nil {
		return LimitsPayload{}, fmt.Errorf("reload %s: %w", s.path, err)
	}
	return LimitsPayload{Limits: cfg.Limits, Version: version(b)}, nil
}
