// Package stepfunctions builds state machine graphs from typed states and
// service integrations and declares them as AWS::StepFunctions::StateMachine
// resources. The role of a state machine collects the permissions of every
// task in its definition.
package stepfunctions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/asl"
	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/resources/logs"
	"github.com/lex00/cdkutils-go/stack"
)

// Types and log levels.
const (
	TypeStandard = "STANDARD"
	TypeExpress  = "EXPRESS"

	LogAll   = "ALL"
	LogError = "ERROR"
	LogFatal = "FATAL"
	LogOff   = "OFF"

	// MaxNameLength is the longest state machine name.
	MaxNameLength = 80
)

var (
	ErrUnknownType     = errors.New("unknown state machine type")
	ErrUnknownLogLevel = errors.New("unknown log level")
)

// IStateMachine is a declared or imported state machine.
type IStateMachine interface {
	Arn() any
	Name() any
}

// DefinitionBody is the definition of a state machine: a state graph or a
// ready-made States Language document.
type DefinitionBody struct {
	chain Chainable
	doc   map[string]any
}

// DefinitionFromChainable renders the graph starting at c.
func DefinitionFromChainable(c Chainable) *DefinitionBody {
	return &DefinitionBody{chain: c}
}

// DefinitionFromDocument uses a complete document, e.g. one built with
// sfnjson.Definition.
func DefinitionFromDocument(doc map[string]any) *DefinitionBody {
	return &DefinitionBody{doc: doc}
}

// Render returns the document and the statements tasks need.
func (d *DefinitionBody) Render() (map[string]any, []*intrinsics.PolicyStatement, error) {
	if d.doc != nil {
		out := make(map[string]any, len(d.doc))
		for k, v := range d.doc {
			out[k] = v
		}
		return out, nil, nil
	}
	if d.chain == nil {
		return nil, nil, errors.New("empty definition")
	}
	g := newGraph()
	doc, err := g.render(d.chain)
	if err != nil {
		return nil, nil, err
	}
	return doc, g.policies, nil
}

type CloudWatchLogsLogGroup struct {
	LogGroupArn any
}

type LogDestination struct {
	CloudWatchLogsLogGroup CloudWatchLogsLogGroup
}

type LoggingConfiguration struct {
	Destinations         []LogDestination
	IncludeExecutionData bool
	Level                string
}

type TracingConfiguration struct {
	Enabled bool
}

// StateMachine is an AWS::StepFunctions::StateMachine.
type StateMachine struct {
	stack.Construct         `json:"-"`
	StateMachineName        string
	StateMachineType        string
	RoleArn                 any
	DefinitionString        string
	DefinitionSubstitutions map[string]any
	LoggingConfiguration    *LoggingConfiguration
	TracingConfiguration    *TracingConfiguration

	definition *DefinitionBody
	role       iam.IRole
	timeout    time.Duration
	comment    string
}

func (*StateMachine) ResourceType() string { return "AWS::StepFunctions::StateMachine" }

// Arn returns the state machine ARN.
func (s *StateMachine) Arn() any { return s.Ref() }

// Name returns the state machine name.
func (s *StateMachine) Name() any { return s.GetAtt("Name") }

// Role returns the role executions run with.
func (s *StateMachine) Role() iam.IRole { return s.role }

// Definition renders the States Language document with intrinsic values
// left in place.
func (s *StateMachine) Definition() (map[string]any, error) {
	doc, _, err := s.render()
	return doc, err
}

func (s *StateMachine) render() (map[string]any, []*intrinsics.PolicyStatement, error) {
	doc, policies, err := s.definition.Render()
	if err != nil {
		return nil, nil, err
	}
	if s.comment != "" {
		doc["Comment"] = s.comment
	}
	if s.timeout > 0 {
		doc["TimeoutSeconds"] = int(s.timeout / time.Second)
	}
	return doc, policies, nil
}

// Prepare renders the definition, grants the role what the tasks need and
// lifts intrinsic values into DefinitionSubstitutions.
func (s *StateMachine) Prepare() error {
	doc, policies, err := s.render()
	if err != nil {
		return err
	}
	for _, p := range policies {
		if _, err := s.role.AddToPolicy(p); err != nil {
			return err
		}
	}
	if r, ok := s.role.(*iam.Role); ok && r.DefaultPolicy() != nil {
		s.AddDependency(r.DefaultPolicy())
	}

	lifted, subs := liftIntrinsics(doc)
	if err := asl.Validate(lifted); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(lifted); err != nil {
		return err
	}
	s.DefinitionString = strings.TrimSuffix(buf.String(), "\n")
	s.DefinitionSubstitutions = subs
	return nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// liftIntrinsics replaces every intrinsic value of doc with a "${Name}"
// placeholder and returns the values by name. Equal values share a name;
// names are assigned in key order so that output is stable.
func liftIntrinsics(doc map[string]any) (map[string]any, map[string]any) {
	subs := make(map[string]any)
	byKey := make(map[string]string)

	var walk func(v any) any
	walk = func(v any) any {
		if intrinsics.IsIntrinsic(v) {
			data, _ := json.Marshal(v)
			key := string(data)
			name, ok := byKey[key]
			if !ok {
				name = substitutionName(v, subs)
				byKey[key] = name
				subs[name] = v
			}
			return "${" + name + "}"
		}
		switch x := v.(type) {
		case map[string]any:
			out := make(map[string]any, len(x))
			for _, k := range sortedKeys(x) {
				out[k] = walk(x[k])
			}
			return out
		case []any:
			out := make([]any, len(x))
			for i, val := range x {
				out[i] = walk(val)
			}
			return out
		}
		// Typed maps and slices, e.g. map[string]sfnjson.State.
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map:
			if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
				return v
			}
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			return walk(m)
		case reflect.Slice:
			if rv.IsNil() || rv.Type().Elem().Kind() == reflect.Uint8 {
				return v
			}
			list := make([]any, rv.Len())
			for i := range list {
				list[i] = rv.Index(i).Interface()
			}
			return walk(list)
		}
		return v
	}

	lifted := walk(doc).(map[string]any)
	if len(subs) == 0 {
		return lifted, nil
	}
	return lifted, subs
}

func substitutionName(v any, taken map[string]any) string {
	base := "Value"
	switch x := v.(type) {
	case intrinsics.Ref:
		base = nonAlnum.ReplaceAllString(x.LogicalName, "")
	case intrinsics.GetAtt:
		base = nonAlnum.ReplaceAllString(x.LogicalName+x.Attribute, "")
	}
	if base == "" {
		base = "Value"
	}
	name := base
	for i := 2; ; i++ {
		if _, ok := taken[name]; !ok {
			return name
		}
		name = base + strconv.Itoa(i)
	}
}

// LogOptions sends execution history to CloudWatch Logs.
type LogOptions struct {
	Destination logs.ILogGroup
	// Level defaults to ERROR.
	Level                string
	IncludeExecutionData bool
}

// StateMachineProps configures CreateStateMachine.
type StateMachineProps struct {
	// StateMachineName defaults to the construct ID. Names are truncated
	// to 80 characters.
	StateMachineName string
	// StateMachineType is STANDARD (default) or EXPRESS.
	StateMachineType string
	// Role defaults to a new role "<id>-Role" assumed by Step Functions.
	Role           iam.IRole
	Timeout        time.Duration
	Comment        string
	Logs           *LogOptions
	TracingEnabled bool
	// RemovalPolicy is DESTROY, RETAIN or SNAPSHOT.
	RemovalPolicy string
}

// CreateStateMachine declares a state machine under id.
func CreateStateMachine(st *stack.Stack, id string, def *DefinitionBody, props StateMachineProps) (*StateMachine, error) {
	if def == nil {
		return nil, fmt.Errorf("state machine %q: definition is required", id)
	}
	name := props.StateMachineName
	if name == "" {
		name = id
	}
	if len(name) > MaxNameLength {
		name = name[:MaxNameLength]
	}
	typ := strings.ToUpper(props.StateMachineType)
	switch typ {
	case "":
		typ = TypeStandard
	case TypeStandard, TypeExpress:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, props.StateMachineType)
	}
	removal, err := stack.ParseRemovalPolicy(props.RemovalPolicy)
	if err != nil {
		return nil, err
	}

	sm := &StateMachine{
		StateMachineName: name,
		StateMachineType: typ,
		definition:       def,
		role:             props.Role,
		timeout:          props.Timeout,
		comment:          props.Comment,
	}
	if err := st.Add(id, sm); err != nil {
		return nil, err
	}
	sm.ApplyRemovalPolicy(removal)

	if sm.role == nil {
		role, err := iam.NewRole(st, id+"-Role", iam.RoleProps{
			AssumedBy: intrinsics.ServicePrincipal{"states.amazonaws.com"},
		})
		if err != nil {
			return nil, err
		}
		sm.role = role
	}
	sm.RoleArn = sm.role.Arn()

	if props.Logs != nil {
		if err := sm.configureLogs(*props.Logs); err != nil {
			return nil, err
		}
	}
	if props.TracingEnabled {
		sm.TracingConfiguration = &TracingConfiguration{Enabled: true}
		if _, err := sm.role.AddToPolicy(iam.PolicyStatement([]string{
			"xray:PutTraceSegments",
			"xray:PutTelemetryRecords",
			"xray:GetSamplingRules",
			"xray:GetSamplingTargets",
		})); err != nil {
			return nil, err
		}
	}
	log.WithField("id", id).WithField("type", typ).Debug("state machine declared")
	return sm, nil
}

func (s *StateMachine) configureLogs(o LogOptions) error {
	if o.Destination == nil {
		return fmt.Errorf("state machine %q: log destination is required", s.ID())
	}
	level := strings.ToUpper(o.Level)
	switch level {
	case "":
		level = LogError
	case LogAll, LogError, LogFatal, LogOff:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, o.Level)
	}
	s.LoggingConfiguration = &LoggingConfiguration{
		Destinations:         []LogDestination{{CloudWatchLogsLogGroup{LogGroupArn: o.Destination.Arn()}}},
		IncludeExecutionData: o.IncludeExecutionData,
		Level:                level,
	}
	_, err := s.role.AddToPolicy(iam.PolicyStatement([]string{
		"logs:CreateLogDelivery",
		"logs:GetLogDelivery",
		"logs:UpdateLogDelivery",
		"logs:DeleteLogDelivery",
		"logs:ListLogDeliveries",
		"logs:PutResourcePolicy",
		"logs:DescribeResourcePolicies",
		"logs:DescribeLogGroups",
	}))
	return err
}

// DeployProps configures DeployStateMachine.
type DeployProps struct {
	// ID overrides the construct ID "profile-for-state-machine-<name>".
	ID   string
	Role iam.IRole
	// LogGroup defaults to a new group "/aws/vendedlogs/states/<name>".
	LogGroup logs.ILogGroup
	// LogLevel defaults to ALL.
	LogLevel string
	Timeout  time.Duration
}

// DeployStateMachine declares state machine name running definition, with
// every execution logged.
func DeployStateMachine(st *stack.Stack, name string, definition Chainable, props DeployProps) (*StateMachine, error) {
	group := props.LogGroup
	if group == nil {
		g, err := logs.CreateLogGroup(st, "/aws/vendedlogs/states/"+name, logs.LogGroupProps{})
		if err != nil {
			return nil, err
		}
		group = g
	}
	id := props.ID
	if id == "" {
		id = "profile-for-state-machine-" + name
	}
	level := props.LogLevel
	if level == "" {
		level = LogAll
	}
	return CreateStateMachine(st, id, DefinitionFromChainable(definition), StateMachineProps{
		StateMachineName: name,
		Role:             props.Role,
		Timeout:          props.Timeout,
		Logs:             &LogOptions{Destination: group, Level: level},
	})
}

// ImportedStateMachine is an existing state machine.
type ImportedStateMachine struct {
	arn  any
	name any
	id   string
}

func (s *ImportedStateMachine) Arn() any   { return s.arn }
func (s *ImportedStateMachine) Name() any  { return s.name }
func (s *ImportedStateMachine) ID() string { return s.id }

// FromStateMachineArn imports the state machine arn under id.
func FromStateMachineArn(st *stack.Stack, id string, arn any) (*ImportedStateMachine, error) {
	if err := st.Import(id); err != nil {
		return nil, err
	}
	name := arn
	if s, ok := arn.(string); ok {
		parts := strings.Split(s, ":")
		name = parts[len(parts)-1]
	}
	return &ImportedStateMachine{arn: arn, name: name, id: id}, nil
}

// FromStateMachineName imports state machine name of the stack's account
// and region under id.
func FromStateMachineName(st *stack.Stack, id, name string) (*ImportedStateMachine, error) {
	if err := st.Import(id); err != nil {
		return nil, err
	}
	arn := st.FormatArn(stack.ArnFormat{Service: "states", Resource: "stateMachine:" + name})
	return &ImportedStateMachine{arn: arn, name: name, id: id}, nil
}

// StateMachineFromName imports state machine name under id, which defaults
// to "profile-for-state-machine-<name>".
func StateMachineFromName(st *stack.Stack, name, id string) (*ImportedStateMachine, error) {
	if id == "" {
		id = "profile-for-state-machine-" + name
	}
	return FromStateMachineName(st, id, name)
}
