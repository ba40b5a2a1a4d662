package source

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

import (
	"gopkg.in/yaml.v3"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

// LimitsPayload is an admission rule table fetched from an external source.
type LimitsPayload struct {
	Limits  config.Limits
	Version string
}

// LimitsSource fetches the rule table (file, Nacos, Redis).
type LimitsSource interface {
	Fetch(ctx context.Context) (LimitsPayload, error)
}

func version(raw []byte) string {
	sum := md5.Sum(raw)
	return fmt.Sprintf("%x", sum[:])
}

// parseLimits accepts either a bare scope map or one wrapped in "limits".
func parseLimits(raw []byte, format string) (config.Limits, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty limits payload")
	}

	format = strings.ToLower(strings.TrimSpace(format))
	var firstErr error

	if format == "json" || format == "" {
		limits, err := tryParseJSON(trimmed)
		if err == nil {
			return limits, nil
		}
		if format == "json" || errors.Is(err, config.ErrMisconfiguredRule) {
			return nil, err
		}
		firstErr = err
	}

	if format == "yaml" || format == "" {
		limits, err := tryParseYAML(trimmed)
		if err == nil {
			return limits, nil
		}
		return nil, err
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("unsupported limits payload format %q", format)
}

func tryParseJSON(raw []byte) (config.Limits, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("not a json object")
	}
	var wrapper struct {
		Limits config.Limits `json:"limits"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Limits != nil {
		return wrapper.Limits, wrapper.Limits.Validate()
	}
	var limits config.Limits
	if err := json.Unmarshal(raw, &limits); err != nil {
		return nil, err
	}
	return limits, limits.Validate()
}

func tryParseYAML(raw []byte) (config.Limits, error) {
	var wrapper struct {
		Limits config.Limits `yaml:"limits"`
	}
	if err := yaml.Unmarshal(raw, &wrapper); err == nil && wrapper.Limits != nil {
		return wrapper.Limits, wrapper.Limits.Validate()
	}
	var limits config.Limits
	if err := yaml.Unmarshal(raw, &limits); err != nil {
		return nil, err
	}
	return limits, limits.Validate()
}
