package registry

import (
	"fmt"
	"sort"
)

// Choice is one legal value of a choice key.
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// ChoiceSet is the ordered, append-only set of choices for one key.
type ChoiceSet struct {
	Key     string
	choices []Choice
	index   map[string]int
}

// RegisterChoice appends value to the choice set of key. Registering a
// value that is already present is a no-op and keeps the first label.
func (p *Point) RegisterChoice(key, value, label string) error {
	if key == "" {
		return fmt.Errorf("%w: choice key is required", ErrInvalidDescriptor)
	}

	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()

	set, ok := p.choices[key]
	if ok {
		if _, exists := set.index[value]; exists {
			return nil
		}
	}
	if p.registry.sealed.Load() {
		return fmt.Errorf("register choice %s=%q: %w", key, value, ErrSealedRegistry)
	}
	if !ok {
		set = &ChoiceSet{Key: key, index: make(map[string]int)}
		p.choices[key] = set
	}
	set.index[value] = len(set.choices)
	set.choices = append(set.choices, Choice{Value: value, Label: label})
	return nil
}

// Choices returns the choices of key in first-registration order.
func (p *Point) Choices(key string) []Choice {
	defer p.registry.rlock()()

	set, ok := p.choices[key]
	if !ok {
		return nil
	}
	return append([]Choice(nil), set.choices...)
}

// ValidChoice returns a *ChoiceError (matching ErrUnknownChoice) when value
// is not registered for key.
func (p *Point) ValidChoice(key, value string) error {
	defer p.registry.rlock()()

	if set, ok := p.choices[key]; ok {
		if _, exists := set.index[value]; exists {
			return nil
		}
	}
	return &ChoiceError{Point: p.name, Key: key, Value: value}
}

// ChoiceLabel returns the label registered for value.
func (p *Point) ChoiceLabel(key, value string) (string, bool) {
	defer p.registry.rlock()()

	set, ok := p.choices[key]
	if !ok {
		return "", false
	}
	i, ok := set.index[value]
	if !ok {
		return "", false
	}
	return set.choices[i].Label, true
}

// ChoiceKeys returns the sorted list of registered choice keys.
func (p *Point) ChoiceKeys() []string {
	defer p.registry.rlock()()

	return p.choiceKeys()
}

func (p *Point) choiceKeys() []string {
	keys := make([]string, 0, len(p.choices))
	for k := range p.choices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
