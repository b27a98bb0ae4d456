// Package catalog holds the immutable rehabilitation exercise library and its
// query layer. The library is seeded from an embedded YAML document at startup
// and never mutated afterwards.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// Type classifies an exercise by rehabilitation discipline.
type Type string

const (
	TypePhysical  Type = "physical"
	TypeSpeech    Type = "speech"
	TypeCognitive Type = "cognitive"
)

// Valid reports whether the type is one of the known disciplines.
func (t Type) Valid() bool {
	switch t {
	case TypePhysical, TypeSpeech, TypeCognitive:
		return true
	}
	return false
}

// ParseType normalises and validates a raw exercise type value.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown exercise type %q", raw)
	}
	return t, nil
}

// Tier is a difficulty position on the ordered axis shared by catalog entries
// and per-user calibration: comfortable < challenging < too-hard.
type Tier string

const (
	TierComfortable Tier = "comfortable"
	TierChallenging Tier = "challenging"
	TierTooHard     Tier = "too-hard"
)

var tierOrder = []Tier{TierComfortable, TierChallenging, TierTooHard}

// Valid reports whether the tier is on the axis.
func (t Tier) Valid() bool {
	return t.rank() >= 0
}

func (t Tier) rank() int {
	for i, tier := range tierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}

// Easier returns the tier one step down, clamped at comfortable.
func (t Tier) Easier() Tier {
	if r := t.rank(); r > 0 {
		return tierOrder[r-1]
	}
	return TierComfortable
}

// Harder returns the tier one step up, clamped at too-hard.
func (t Tier) Harder() Tier {
	r := t.rank()
	if r < 0 {
		return TierComfortable
	}
	if r < len(tierOrder)-1 {
		return tierOrder[r+1]
	}
	return tierOrder[len(tierOrder)-1]
}

// ParseTier normalises and validates a raw tier value.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown difficulty tier %q", raw)
	}
	return t, nil
}

// Exercise is one immutable catalog entry.
type Exercise struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Type         Type   `yaml:"type" json:"type"`
	Category     string `yaml:"category" json:"category"`
	BodyArea     string `yaml:"body_area" json:"body_area"`
	Tier         Tier   `yaml:"tier" json:"tier"`
	Equipment    string `yaml:"equipment" json:"equipment,omitempty"`
	Benefit      string `yaml:"benefit" json:"benefit,omitempty"`
	Instructions string `yaml:"instructions" json:"instructions"`
	Repetitions  int    `yaml:"repetitions" json:"repetitions,omitempty"`
	DurationSec  int    `yaml:"duration_sec" json:"duration_sec,omitempty"`
	RestSec      int    `yaml:"rest_sec" json:"rest_sec,omitempty"`
	Precautions  string `yaml:"precautions" json:"precautions,omitempty"`
}

//go:embed exercises.yaml
var seedDocument []byte

// Catalog is the loaded exercise library. Queries preserve the seed file's
// insertion order so selection is deterministic.
type Catalog struct {
	exercises []Exercise
	byID      map[string]int
}

// Load parses the embedded seed document.
func Load() (*Catalog, error) {
	var doc struct {
		Exercises []Exercise `yaml:"exercises"`
	}
	if err := yaml.Unmarshal(seedDocument, &doc); err != nil {
		return nil, fmt.Errorf("parse exercise seed: %w", err)
	}
	return New(doc.Exercises)
}

// New builds a catalog from the given entries, validating ids and enums.
func New(exercises []Exercise) (*Catalog, error) {
	if len(exercises) == 0 {
		return nil, errors.New("catalog requires at least one exercise")
	}
	c := &Catalog{
		exercises: make([]Exercise, 0, len(exercises)),
		byID:      make(map[string]int, len(exercises)),
	}
	for _, ex := range exercises {
		ex.ID = strings.TrimSpace(ex.ID)
		ex.Category = strings.ToLower(strings.TrimSpace(ex.Category))
		if ex.ID == "" {
			return nil, errors.New("catalog entry missing id")
		}
		if _, dup := c.byID[ex.ID]; dup {
			return nil, fmt.Errorf("duplicate exercise id %q", ex.ID)
		}
		if !ex.Type.Valid() {
			return nil, fmt.Errorf("exercise %s: invalid type %q", ex.ID, ex.Type)
		}
		if !ex.Tier.Valid() {
			return nil, fmt.Errorf("exercise %s: invalid tier %q", ex.ID, ex.Tier)
		}
		if strings.TrimSpace(ex.Name) == "" {
			return nil, fmt.Errorf("exercise %s: missing name", ex.ID)
		}
		c.byID[ex.ID] = len(c.exercises)
		c.exercises = append(c.exercises, ex)
	}
	return c, nil
}

// Len reports the number of entries.
func (c *Catalog) Len() int {
	return len(c.exercises)
}

// Get returns the exercise with the given id.
func (c *Catalog) Get(id string) (Exercise, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Exercise{}, false
	}
	return c.exercises[idx], true
}

// HasType reports whether any entry exists for the discipline.
func (c *Catalog) HasType(t Type) bool {
	for _, ex := range c.exercises {
		if ex.Type == t {
			return true
		}
	}
	return false
}

// Select returns the session queue candidates for a discipline, optional
// category and calibration tier: entries tagged with that tier in insertion
// order. When the tier has no matching entries the selection falls back to
// every matching entry ordered by ascending tier, insertion-stable within each
// tier.
func (c *Catalog) Select(t Type, category string, tier Tier) []Exercise {
	category = strings.ToLower(strings.TrimSpace(category))

	matched := c.collect(t, category, tier)
	if len(matched) > 0 {
		return matched
	}
	var all []Exercise
	for _, candidate := range tierOrder {
		all = append(all, c.collect(t, category, candidate)...)
	}
	return all
}

// Filter returns entries for the listing API. Empty category or tier match
// everything; results keep insertion order.
func (c *Catalog) Filter(t Type, category string, tier Tier) []Exercise {
	category = strings.ToLower(strings.TrimSpace(category))

	result := make([]Exercise, 0)
	for _, ex := range c.exercises {
		if ex.Type != t {
			continue
		}
		if category != "" && ex.Category != category {
			continue
		}
		if tier != "" && ex.Tier != tier {
			continue
		}
		result = append(result, ex)
	}
	return result
}

func (c *Catalog) collect(t Type, category string, tier Tier) []Exercise {
	var result []Exercise
	for _, ex := range c.exercises {
		if ex.Type != t || ex.Tier != tier {
			continue
		}
		if category != "" && ex.Category != category {
			continue
		}
		result = append(result, ex)
	}
	return result
}
