package rules

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Loaded is a parsed rule set plus the SHA-256 of its source bytes, kept for
// traceability of which rules produced a verdict.
type Loaded struct {
	Rules  RuleSet
	SHA256 string
	Source string
}

// Default returns the embedded rule set.
func Default() Loaded {
	l, err := Parse(defaultRules, "embedded")
	if err != nil {
		panic(fmt.Sprintf("embedded rules invalid: %v", err))
	}
	return l
}

// LoadFile reads a YAML rule set from disk. An empty path yields Default.
func LoadFile(ctx context.Context, path string) (Loaded, error) {
	if err := ctx.Err(); err != nil {
		return Loaded{}, err
	}
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("read rules: %w", err)
	}
	return Parse(raw, path)
}

// Parse decodes YAML (JSON being a subset) and validates the result.
func Parse(raw []byte, source string) (Loaded, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return Loaded{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := Validate(rs); err != nil {
		return Loaded{}, err
	}
	sum := sha256.Sum256(raw)
	return Loaded{Rules: rs, SHA256: hex.EncodeToString(sum[:]), Source: source}, nil
}

// FromJSON decodes a rule set stored as a threshold configuration blob.
func FromJSON(raw []byte) (RuleSet, error) {
	var rs RuleSet
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rs); err != nil {
		return RuleSet{}, fmt.Errorf("decode rules: %w", err)
	}
	if err := Validate(rs); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// Validate checks structural sanity; it does not judge business values.
func Validate(rs RuleSet) error {
	var errs []error
	if p := rs.Processor; p != nil {
		if p.MinClockGHz < 0 || p.MinCores < 0 {
			errs = append(errs, errors.New("processor: minimums must not be negative"))
		}
	}
	if m := rs.Memory; m != nil && m.MinGB < 0 {
		errs = append(errs, errors.New("memory: min_gb must not be negative"))
	}
	if s := rs.Storage; s != nil {
		if len(s.Options) == 0 {
			errs = append(errs, errors.New("storage: at least one option is required"))
		}
		for i, o := range s.Options {
			if strings.TrimSpace(o.Type) == "" {
				errs = append(errs, fmt.Errorf("storage: option %d has no type", i))
			}
			if o.MinGB < 0 {
				errs = append(errs, fmt.Errorf("storage: option %d min_gb must not be negative", i))
			}
		}
	}
	if o := rs.OS; o != nil && len(o.Accepted) == 0 {
		errs = append(errs, errors.New("os: accepted list is empty"))
	}
	if c := rs.Connectivity; c != nil {
		seen := map[string]bool{}
		for i, t := range c.Technologies {
			key := strings.ToLower(strings.TrimSpace(t.Technology))
			if key == "" {
				errs = append(errs, fmt.Errorf("connectivity: technology %d has no name", i))
				continue
			}
			if seen[key] {
				errs = append(errs, fmt.Errorf("connectivity: duplicate technology %q", t.Technology))
			}
			seen[key] = true
		}
	}
	if h := rs.Headset; h != nil && h.Strict && len(h.Homologated) == 0 {
		errs = append(errs, errors.New("headset: strict validation needs a homologation list"))
	}
	return errors.Join(errs...)
}

// JSON encodes rs for storage in a threshold configuration.
func (rs RuleSet) JSON() ([]byte, error) {
	return json.Marshal(rs)
}
