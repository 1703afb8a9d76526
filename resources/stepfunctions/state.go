package stepfunctions

import (
	"errors"
	"fmt"
	"time"

	"github.com/lex00/cdkutils-go/intrinsics"
)

// ErrInvalidChain is returned when a chain continues from a state that
// cannot have a successor.
var ErrInvalidChain = errors.New("invalid chain")

// Chainable is a state or a sequence of states.
type Chainable interface {
	StartState() State
	EndStates() []State
}

// State is a node of a state machine graph. States are plain values; they
// become part of a template only through a StateMachine definition.
type State interface {
	Chainable
	Name() string
	base() *stateBase
	successors() []State
	toJSON(g *graph) (map[string]any, error)
}

// Paths are the input and output processing fields shared by states.
type Paths struct {
	Comment    string
	InputPath  string
	OutputPath string
	// ResultPath may be Discard.
	ResultPath     string
	ResultSelector map[string]any
}

// Retry retries a failed state. Zero fields take the service defaults:
// every error, 1 second interval, 3 attempts, backoff rate 2.
type Retry struct {
	Errors      []string
	Interval    time.Duration
	MaxAttempts int
	BackoffRate float64
}

// CatchProps configures a fallback state.
type CatchProps struct {
	// Errors defaults to States.ALL.
	Errors     []string
	ResultPath string
}

type catchRule struct {
	handler State
	props   CatchProps
}

type stateBase struct {
	name     string
	paths    Paths
	next     State
	terminal bool
	retries  []Retry
	catches  []catchRule
	err      error
}

func (b *stateBase) Name() string     { return b.name }
func (b *stateBase) base() *stateBase { return b }

func (b *stateBase) setNext(s State) error {
	if b.terminal {
		return fmt.Errorf("%w: %s cannot have a next state", ErrInvalidChain, b.name)
	}
	if b.next != nil && b.next != s {
		return fmt.Errorf("%w: %s already continues with %s", ErrInvalidChain, b.name, b.next.Name())
	}
	b.next = s
	return nil
}

func (b *stateBase) successors() []State {
	var out []State
	if b.next != nil {
		out = append(out, b.next)
	}
	for _, c := range b.catches {
		out = append(out, c.handler)
	}
	return out
}

func (b *stateBase) addCatch(handler Chainable, props CatchProps) {
	if handler == nil {
		b.err = fmt.Errorf("%s: catch handler is nil", b.name)
		return
	}
	b.catches = append(b.catches, catchRule{handler: handler.StartState(), props: props})
}

// common renders the fields every state shares. result controls whether
// ResultPath and ResultSelector apply to the state type.
func (b *stateBase) common(typ string, result bool) (map[string]any, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := map[string]any{"Type": typ}
	p := b.paths
	if p.Comment != "" {
		m["Comment"] = p.Comment
	}
	if p.InputPath != "" {
		m["InputPath"] = renderPath(p.InputPath)
	}
	if p.OutputPath != "" {
		m["OutputPath"] = renderPath(p.OutputPath)
	}
	if result {
		if p.ResultPath != "" {
			m["ResultPath"] = renderPath(p.ResultPath)
		}
		if len(p.ResultSelector) > 0 {
			sel, err := renderObject(p.ResultSelector)
			if err != nil {
				return nil, fmt.Errorf("%s: ResultSelector: %w", b.name, err)
			}
			m["ResultSelector"] = sel
		}
	}
	if !b.terminal {
		if b.next != nil {
			m["Next"] = b.next.Name()
		} else {
			m["End"] = true
		}
	}
	if len(b.retries) > 0 {
		retries := make([]any, 0, len(b.retries))
		for _, r := range b.retries {
			retries = append(retries, r.toJSON())
		}
		m["Retry"] = retries
	}
	if len(b.catches) > 0 {
		catches := make([]any, 0, len(b.catches))
		for _, c := range b.catches {
			errs := c.props.Errors
			if len(errs) == 0 {
				errs = []string{"States.ALL"}
			}
			cm := map[string]any{"ErrorEquals": toAny(errs), "Next": c.handler.Name()}
			if c.props.ResultPath != "" {
				cm["ResultPath"] = renderPath(c.props.ResultPath)
			}
			catches = append(catches, cm)
		}
		m["Catch"] = catches
	}
	return m, nil
}

func (r Retry) toJSON() map[string]any {
	errs := r.Errors
	if len(errs) == 0 {
		errs = []string{"States.ALL"}
	}
	m := map[string]any{"ErrorEquals": toAny(errs)}
	if r.Interval > 0 {
		m["IntervalSeconds"] = int(r.Interval / time.Second)
	}
	if r.MaxAttempts > 0 {
		m["MaxAttempts"] = r.MaxAttempts
	}
	if r.BackoffRate > 0 {
		m["BackoffRate"] = r.BackoffRate
	}
	return m
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// Chain is a sequence of states. A failed Next is remembered and reported
// by Err and when the chain is rendered.
type Chain struct {
	start State
	ends  []State
	err   error
}

// Start begins a chain at c.
func Start(c Chainable) *Chain {
	if ch, ok := c.(*Chain); ok {
		return ch
	}
	return &Chain{start: c.StartState(), ends: c.EndStates()}
}

// Sequence chains states in order.
func Sequence(first Chainable, rest ...Chainable) *Chain {
	c := Start(first)
	for _, n := range rest {
		c = c.Next(n)
	}
	return c
}

func (c *Chain) StartState() State  { return c.start }
func (c *Chain) EndStates() []State { return c.ends }

// Err returns the first chaining error.
func (c *Chain) Err() error { return c.err }

// Next continues every end state of c with n.
func (c *Chain) Next(n Chainable) *Chain {
	out := &Chain{start: c.start, ends: c.ends, err: c.err}
	if out.err != nil {
		return out
	}
	if n == nil {
		out.err = fmt.Errorf("%w: next state is nil", ErrInvalidChain)
		return out
	}
	if nc, ok := n.(*Chain); ok && nc.err != nil {
		out.err = nc.err
		return out
	}
	next := n.StartState()
	for _, end := range c.ends {
		if err := end.base().setNext(next); err != nil {
			out.err = err
			return out
		}
	}
	out.ends = n.EndStates()
	return out
}

// graph renders states, keeping state names unique across the whole
// machine and collecting the policy statements tasks need.
type graph struct {
	names    map[string]State
	policies []*intrinsics.PolicyStatement
}

func newGraph() *graph {
	return &graph{names: make(map[string]State)}
}

// render returns {"StartAt": ..., "States": {...}} for every state
// reachable from start.
func (g *graph) render(c Chainable) (map[string]any, error) {
	if ch, ok := c.(*Chain); ok && ch.err != nil {
		return nil, ch.err
	}
	start := c.StartState()
	if start == nil {
		return nil, errors.New("empty state graph")
	}
	states := make(map[string]any)
	visited := make(map[State]bool)
	queue := []State{start}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if visited[s] {
			continue
		}
		visited[s] = true

		name := s.Name()
		if name == "" {
			return nil, errors.New("state name must not be empty")
		}
		if len(name) > 80 {
			return nil, fmt.Errorf("state name %q is longer than 80 characters", name)
		}
		if other, ok := g.names[name]; ok && other != s {
			return nil, fmt.Errorf("duplicate state name %q", name)
		}
		g.names[name] = s

		m, err := s.toJSON(g)
		if err != nil {
			return nil, err
		}
		states[name] = m
		queue = append(queue, s.successors()...)
	}
	return map[string]any{"StartAt": start.Name(), "States": states}, nil
}
