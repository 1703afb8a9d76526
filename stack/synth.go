package stack

import (
	"fmt"
	"strings"

	"github.com/apex/log"

	cdkutils "github.com/lex00/cdkutils-go"
	"github.com/lex00/cdkutils-go/internal/serialize"
	"github.com/lex00/cdkutils-go/internal/template"
)

// Synth prepares and serializes every resource and assembles the template.
func (s *Stack) Synth() (*cdkutils.Template, error) {
	// Preparers may declare more resources, so the length is re-read.
	for i := 0; i < len(s.resources); i++ {
		if p, ok := s.resources[i].(Preparer); ok {
			if err := p.Prepare(); err != nil {
				return nil, fmt.Errorf("preparing %s: %w", s.resources[i].base().ID(), err)
			}
		}
	}

	b := template.NewBuilder(s.Description)
	for _, name := range s.paramOrder {
		b.AddParameter(name, s.parameters[name])
	}
	for name, o := range s.outputs {
		value, err := serialize.Value(o.Value)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		o.Value = value
		b.AddOutput(name, o)
	}

	for _, r := range s.resources {
		node, err := s.node(r)
		if err != nil {
			return nil, err
		}
		if err := b.AddResource(node); err != nil {
			return nil, err
		}
	}

	tmpl, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", s.Name, err)
	}
	log.WithField("stack", s.Name).WithField("resources", len(tmpl.Resources)).Debug("synthesized")
	return tmpl, nil
}

// SynthJSON synthesizes the stack as indented JSON.
func (s *Stack) SynthJSON() ([]byte, error) {
	tmpl, err := s.Synth()
	if err != nil {
		return nil, err
	}
	return template.ToJSON(tmpl)
}

// SynthYAML synthesizes the stack as YAML.
func (s *Stack) SynthYAML() ([]byte, error) {
	tmpl, err := s.Synth()
	if err != nil {
		return nil, err
	}
	return template.ToYAML(tmpl)
}

func (s *Stack) node(r Resource) (template.Node, error) {
	c := r.base()
	props, err := serialize.Properties(r)
	if err != nil {
		return template.Node{}, fmt.Errorf("serializing %s: %w", c.ID(), err)
	}

	n := template.Node{
		LogicalID:  c.logicalID,
		Type:       r.ResourceType(),
		Properties: props,
	}
	if policy := c.removal.cfnPolicy(); policy != "" {
		n.DeletionPolicy = policy
		n.UpdateReplacePolicy = policy
	}
	for _, dep := range c.dependsOn {
		d := dep.base()
		if d.stack != s {
			continue
		}
		n.DependsOn = append(n.DependsOn, d.logicalID)
	}

	for _, o := range c.overrides {
		if err := applyOverride(&n, o); err != nil {
			return template.Node{}, fmt.Errorf("override on %s: %w", c.ID(), err)
		}
	}
	return n, nil
}

func applyOverride(n *template.Node, o override) error {
	value, err := serialize.Value(o.value)
	if err != nil {
		return err
	}

	switch o.path {
	case "DeletionPolicy":
		n.DeletionPolicy = fmt.Sprint(value)
		return nil
	case "UpdateReplacePolicy":
		n.UpdateReplacePolicy = fmt.Sprint(value)
		return nil
	}

	rest, ok := strings.CutPrefix(o.path, "Properties.")
	if !ok || rest == "" {
		return fmt.Errorf("unsupported override path %q", o.path)
	}
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}

	keys := strings.Split(rest, ".")
	current := n.Properties
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
	last := keys[len(keys)-1]
	if value == nil {
		delete(current, last)
	} else {
		current[last] = value
	}
	return nil
}
