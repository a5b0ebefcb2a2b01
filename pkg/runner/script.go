package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Step is one scripted command. A zero Cycle means the cycle after the
// previous step.
type Step struct {
	Cycle  uint64         `yaml:"cycle,omitempty" json:"cycle,omitempty"`
	Verb   string         `yaml:"verb" json:"verb"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Script is an ordered list of commands to place on the output link.
type Script struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScript decodes a YAML script, fills in implicit cycles and validates it.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}

	var prev uint64
	for i := range s.Steps {
		if s.Steps[i].Cycle == 0 {
			s.Steps[i].Cycle = prev + 1
		}
		prev = s.Steps[i].Cycle
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks verbs and that cycles never decrease.
func (s *Script) Validate() error {
	verbs := wmbridge.Verbs()
	var errs []error
	var prev uint64
	for i, st := range s.Steps {
		if !slices.Contains(verbs, st.Verb) {
			errs = append(errs, fmt.Errorf("step %d: unknown verb %q", i+1, st.Verb))
		}
		if st.Cycle == 0 {
			errs = append(errs, fmt.Errorf("step %d: cycle must be positive", i+1))
		}
		if st.Cycle < prev {
			errs = append(errs, fmt.Errorf("step %d: cycle %d is before cycle %d", i+1, st.Cycle, prev))
		}
		prev = st.Cycle
	}
	return errors.Join(errs...)
}

// LastCycle returns the cycle of the final step, or 0 for an empty script.
func (s *Script) LastCycle() uint64 {
	if len(s.Steps) == 0 {
		return 0
	}
	return s.Steps[len(s.Steps)-1].Cycle
}

// PlaceFunc places a command on the output link of the working memory.
type PlaceFunc func(verb string, params map[string]any) (ports.CommandNode, error)

// ScriptedEngine is a reasoning engine that replays a Script.
type ScriptedEngine struct {
	script *Script
	place  PlaceFunc
	next   int
}

var _ ports.ReasoningEngine = (*ScriptedEngine)(nil)

// NewScriptedEngine creates an engine replaying script through place.
func NewScriptedEngine(script *Script, place PlaceFunc) *ScriptedEngine {
	return &ScriptedEngine{script: script, place: place}
}

// Step places every step due at or before cycle. It returns ErrHalt with
// the last batch.
func (e *ScriptedEngine) Step(ctx context.Context, cycle uint64) ([]ports.CommandNode, error) {
	var out []ports.CommandNode
	for e.next < len(e.script.Steps) && e.script.Steps[e.next].Cycle <= cycle {
		st := e.script.Steps[e.next]
		cmd, err := e.place(st.Verb, st.Params)
		if err != nil {
			return out, fmt.Errorf("place %s: %w", st.Verb, err)
		}
		out = append(out, cmd)
		e.next++
	}
	if e.next == len(e.script.Steps) {
		return out, ErrHalt
	}
	return out, nil
}
