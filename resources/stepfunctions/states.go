package stepfunctions

import (
	"errors"
	"fmt"
	"time"
)

// Pass passes its input to its output, optionally injecting a result.
type Pass struct {
	stateBase
	result     any
	parameters map[string]any
}

// PassProps configures NewPass.
type PassProps struct {
	Paths
	// Result is a literal result. A Path result selects the result from
	// the state input instead.
	Result     any
	Parameters map[string]any
}

// NewPass creates a Pass state.
func NewPass(name string, props PassProps) *Pass {
	return &Pass{
		stateBase:  stateBase{name: name, paths: props.Paths},
		result:     props.Result,
		parameters: props.Parameters,
	}
}

func (s *Pass) StartState() State       { return s }
func (s *Pass) EndStates() []State      { return []State{s} }
func (s *Pass) Next(n Chainable) *Chain { return Start(s).Next(n) }

func (s *Pass) toJSON(*graph) (map[string]any, error) {
	m, err := s.common("Pass", true)
	if err != nil {
		return nil, err
	}
	delete(m, "ResultSelector")
	switch r := s.result.(type) {
	case nil:
	case Path:
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		if s.paths.InputPath != "" {
			return nil, fmt.Errorf("%s: a path result and an InputPath cannot be combined", s.name)
		}
		m["InputPath"] = string(r)
	default:
		m["Result"] = r
	}
	if len(s.parameters) > 0 {
		params, err := renderObject(s.parameters)
		if err != nil {
			return nil, fmt.Errorf("%s: Parameters: %w", s.name, err)
		}
		m["Parameters"] = params
	}
	return m, nil
}

// WaitTime is how long a Wait state waits.
type WaitTime struct {
	field string
	value any
}

// WaitDuration waits for d, rounded down to whole seconds.
func WaitDuration(d time.Duration) WaitTime {
	return WaitTime{field: "Seconds", value: int(d / time.Second)}
}

// WaitSeconds waits for n seconds.
func WaitSeconds(n int) WaitTime { return WaitTime{field: "Seconds", value: n} }

// WaitSecondsPath waits for the number of seconds found at path.
func WaitSecondsPath(path string) WaitTime { return WaitTime{field: "SecondsPath", value: path} }

// WaitTimestamp waits until t.
func WaitTimestamp(t time.Time) WaitTime {
	return WaitTime{field: "Timestamp", value: t.UTC().Format(time.RFC3339)}
}

// WaitTimestampPath waits until the timestamp found at path.
func WaitTimestampPath(path string) WaitTime { return WaitTime{field: "TimestampPath", value: path} }

// Wait delays the execution.
type Wait struct {
	stateBase
	time WaitTime
}

// WaitProps configures NewWait.
type WaitProps struct {
	Comment string
	Time    WaitTime
}

// NewWait creates a Wait state.
func NewWait(name string, props WaitProps) *Wait {
	return &Wait{stateBase: stateBase{name: name, paths: Paths{Comment: props.Comment}}, time: props.Time}
}

func (s *Wait) StartState() State       { return s }
func (s *Wait) EndStates() []State      { return []State{s} }
func (s *Wait) Next(n Chainable) *Chain { return Start(s).Next(n) }

func (s *Wait) toJSON(*graph) (map[string]any, error) {
	if s.time.field == "" {
		return nil, fmt.Errorf("%s: wait time is required", s.name)
	}
	m, err := s.common("Wait", false)
	if err != nil {
		return nil, err
	}
	m[s.time.field] = s.time.value
	return m, nil
}

// Succeed ends the execution successfully.
type Succeed struct{ stateBase }

// NewSucceed creates a Succeed state. Only Comment, InputPath and
// OutputPath of props apply.
func NewSucceed(name string, props Paths) *Succeed {
	return &Succeed{stateBase{name: name, paths: props, terminal: true}}
}

func (s *Succeed) StartState() State  { return s }
func (s *Succeed) EndStates() []State { return nil }

func (s *Succeed) toJSON(*graph) (map[string]any, error) {
	return s.common("Succeed", false)
}

// Fail ends the execution with an error.
type Fail struct {
	stateBase
	errorName string
	cause     string
}

// FailProps configures NewFail.
type FailProps struct {
	Comment string
	Error   string
	Cause   string
}

// NewFail creates a Fail state.
func NewFail(name string, props FailProps) *Fail {
	return &Fail{
		stateBase: stateBase{name: name, paths: Paths{Comment: props.Comment}, terminal: true},
		errorName: props.Error,
		cause:     props.Cause,
	}
}

func (s *Fail) StartState() State  { return s }
func (s *Fail) EndStates() []State { return nil }

func (s *Fail) toJSON(*graph) (map[string]any, error) {
	m, err := s.common("Fail", false)
	if err != nil {
		return nil, err
	}
	if s.errorName != "" {
		m["Error"] = s.errorName
	}
	if s.cause != "" {
		m["Cause"] = s.cause
	}
	return m, nil
}

type choiceRule struct {
	cond Condition
	next Chainable
}

// Choice branches on conditions over the state input.
type Choice struct {
	stateBase
	rules     []choiceRule
	otherwise Chainable
}

// NewChoice creates a Choice state. Only Comment, InputPath and OutputPath
// of props apply.
func NewChoice(name string, props Paths) *Choice {
	return &Choice{stateBase: stateBase{name: name, paths: props, terminal: true}}
}

// When continues with next if cond holds. Rules are tried in order.
func (c *Choice) When(cond Condition, next Chainable) *Choice {
	if next == nil {
		c.err = fmt.Errorf("%s: rule %d has no next state", c.name, len(c.rules))
		return c
	}
	c.rules = append(c.rules, choiceRule{cond: cond, next: next})
	return c
}

// Otherwise continues with next when no rule matches.
func (c *Choice) Otherwise(next Chainable) *Choice {
	c.otherwise = next
	return c
}

// Afterwards returns a chain whose end states are the ends of every branch,
// so that all branches can be continued with one state.
func (c *Choice) Afterwards() *Chain {
	var ends []State
	for _, r := range c.rules {
		ends = append(ends, r.next.EndStates()...)
	}
	if c.otherwise != nil {
		ends = append(ends, c.otherwise.EndStates()...)
	}
	return &Chain{start: c, ends: ends}
}

func (c *Choice) StartState() State  { return c }
func (c *Choice) EndStates() []State { return []State{c} }

func (c *Choice) successors() []State {
	var out []State
	for _, r := range c.rules {
		out = append(out, r.next.StartState())
	}
	if c.otherwise != nil {
		out = append(out, c.otherwise.StartState())
	}
	return out
}

func (c *Choice) toJSON(*graph) (map[string]any, error) {
	m, err := c.common("Choice", false)
	if err != nil {
		return nil, err
	}
	if len(c.rules) == 0 {
		return nil, fmt.Errorf("%s: choice has no rules", c.name)
	}
	choices := make([]any, 0, len(c.rules))
	for i, r := range c.rules {
		cm, err := r.cond.render()
		if err != nil {
			return nil, fmt.Errorf("%s: rule %d: %w", c.name, i, err)
		}
		cm["Next"] = r.next.StartState().Name()
		choices = append(choices, cm)
	}
	m["Choices"] = choices
	if c.otherwise != nil {
		m["Default"] = c.otherwise.StartState().Name()
	}
	return m, nil
}

// Parallel runs branches concurrently and outputs their results as a list.
type Parallel struct {
	stateBase
	branches []Chainable
}

// NewParallel creates a Parallel state.
func NewParallel(name string, props Paths) *Parallel {
	return &Parallel{stateBase: stateBase{name: name, paths: props}}
}

// Branch adds branches in order.
func (s *Parallel) Branch(branches ...Chainable) *Parallel {
	s.branches = append(s.branches, branches...)
	return s
}

// AddRetry retries the whole state on failure.
func (s *Parallel) AddRetry(r Retry) *Parallel {
	s.retries = append(s.retries, r)
	return s
}

// AddCatch continues with handler when the state fails.
func (s *Parallel) AddCatch(handler Chainable, props CatchProps) *Parallel {
	s.addCatch(handler, props)
	return s
}

func (s *Parallel) StartState() State       { return s }
func (s *Parallel) EndStates() []State      { return []State{s} }
func (s *Parallel) Next(n Chainable) *Chain { return Start(s).Next(n) }

func (s *Parallel) toJSON(g *graph) (map[string]any, error) {
	if len(s.branches) == 0 {
		return nil, fmt.Errorf("%s: parallel state has no branches", s.name)
	}
	m, err := s.common("Parallel", true)
	if err != nil {
		return nil, err
	}
	branches := make([]any, 0, len(s.branches))
	for _, b := range s.branches {
		doc, err := g.render(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		branches = append(branches, doc)
	}
	m["Branches"] = branches
	return m, nil
}

// Map runs an iterator for every item of a list in the state input.
type Map struct {
	stateBase
	itemsPath      string
	maxConcurrency int
	parameters     map[string]any
	iterator       Chainable
}

// MapProps configures NewMap.
type MapProps struct {
	Paths
	ItemsPath string
	// MaxConcurrency 0 means unlimited.
	MaxConcurrency int
	Parameters     map[string]any
}

// NewMap creates a Map state.
func NewMap(name string, props MapProps) *Map {
	return &Map{
		stateBase:      stateBase{name: name, paths: props.Paths},
		itemsPath:      props.ItemsPath,
		maxConcurrency: props.MaxConcurrency,
		parameters:     props.Parameters,
	}
}

// Iterator sets the states run for each item.
func (s *Map) Iterator(c Chainable) *Map {
	s.iterator = c
	return s
}

// AddRetry retries the whole state on failure.
func (s *Map) AddRetry(r Retry) *Map {
	s.retries = append(s.retries, r)
	return s
}

// AddCatch continues with handler when the state fails.
func (s *Map) AddCatch(handler Chainable, props CatchProps) *Map {
	s.addCatch(handler, props)
	return s
}

func (s *Map) StartState() State       { return s }
func (s *Map) EndStates() []State      { return []State{s} }
func (s *Map) Next(n Chainable) *Chain { return Start(s).Next(n) }

func (s *Map) toJSON(g *graph) (map[string]any, error) {
	if s.iterator == nil {
		return nil, fmt.Errorf("%s: map state has no iterator", s.name)
	}
	m, err := s.common("Map", true)
	if err != nil {
		return nil, err
	}
	if s.itemsPath != "" {
		m["ItemsPath"] = s.itemsPath
	}
	if s.maxConcurrency > 0 {
		m["MaxConcurrency"] = s.maxConcurrency
	}
	if len(s.parameters) > 0 {
		params, err := renderObject(s.parameters)
		if err != nil {
			return nil, fmt.Errorf("%s: Parameters: %w", s.name, err)
		}
		m["Parameters"] = params
	}
	doc, err := g.render(s.iterator)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	m["Iterator"] = doc
	return m, nil
}

// CustomState is a state given as raw States Language JSON. Next or End is
// added when the state type transitions.
type CustomState struct {
	stateBase
	stateJSON map[string]any
}

// NewCustomState creates a state from its JSON definition.
func NewCustomState(name string, stateJSON map[string]any) *CustomState {
	s := &CustomState{stateBase: stateBase{name: name}, stateJSON: stateJSON}
	switch stateJSON["Type"] {
	case "Succeed", "Fail", "Choice":
		s.terminal = true
	case nil:
		s.err = errors.New(name + ": custom state has no Type")
	}
	return s
}

func (s *CustomState) StartState() State       { return s }
func (s *CustomState) EndStates() []State      { return []State{s} }
func (s *CustomState) Next(n Chainable) *Chain { return Start(s).Next(n) }

func (s *CustomState) toJSON(*graph) (map[string]any, error) {
	typ, _ := s.stateJSON["Type"].(string)
	m, err := s.common(typ, false)
	if err != nil {
		return nil, err
	}
	for k, v := range s.stateJSON {
		m[k] = v
	}
	if _, ok := m["Next"]; ok {
		delete(m, "End")
	}
	return m, nil
}
