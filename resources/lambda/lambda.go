// Package lambda declares Lambda functions, layers, permissions and event
// source mappings.
package lambda

import (
	"errors"
	"fmt"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/stack"
)

// Runtimes.
const (
	RuntimePython38  = "python3.8"
	RuntimePython39  = "python3.9"
	RuntimePython310 = "python3.10"
	RuntimePython311 = "python3.11"
	RuntimePython312 = "python3.12"
	RuntimeProvided  = "provided.al2023"
)

// Defaults applied by ImplementFunction.
const (
	DefaultHandler    = "lambda_handler.lambda_handler"
	DefaultMemorySize = 128
	DefaultTimeout    = 5
	DefaultRuntime    = RuntimePython38
)

// ErrNoCode is returned when a function has neither an asset path nor code.
var ErrNoCode = errors.New("lambda function has no code")

// IFunction is a declared or imported function.
type IFunction interface {
	Arn() any
	Name() any
	Stack() *stack.Stack
	ID() string
	// AddToRolePolicy grants the function's role a statement. Imported
	// functions ignore it.
	AddToRolePolicy(s *intrinsics.PolicyStatement) error
}

// Code is the Code property of a function.
type Code struct {
	S3Bucket any
	S3Key    any
	ZipFile  string
}

// CodeFromAsset records a local file or directory as a file asset.
func CodeFromAsset(st *stack.Stack, path string) (*Code, error) {
	a, err := st.AddFileAsset(path)
	if err != nil {
		return nil, err
	}
	return &Code{S3Bucket: st.AssetBucket(), S3Key: a.ObjectKey()}, nil
}

// CodeFromBucket points at a zip already in S3.
func CodeFromBucket(bucket any, key string) *Code {
	return &Code{S3Bucket: bucket, S3Key: key}
}

// CodeFromInline embeds source code in the template.
func CodeFromInline(source string) *Code {
	return &Code{ZipFile: source}
}

// Environment holds function environment variables.
type Environment struct {
	Variables map[string]any
}

// Function is an AWS::Lambda::Function.
type Function struct {
	stack.Construct `json:"-"`
	FunctionName    any
	Description     string
	Handler         string
	Runtime         string
	MemorySize      int
	Timeout         int
	Role            any
	Code            *Code
	Layers          []any
	Environment     *Environment
	Architectures   []string

	ReservedConcurrentExecutions *int

	role iam.IRole
}

func (*Function) ResourceType() string { return "AWS::Lambda::Function" }

// Arn returns the function ARN.
func (f *Function) Arn() any { return f.GetAtt("Arn") }

// Name returns the function name.
func (f *Function) Name() any { return f.Ref() }

// ExecutionRole returns the role the function runs as.
func (f *Function) ExecutionRole() iam.IRole { return f.role }

// AddToRolePolicy grants the execution role a statement.
func (f *Function) AddToRolePolicy(s *intrinsics.PolicyStatement) error {
	_, err := f.role.AddToPolicy(s)
	return err
}

// AddEnvironment sets one environment variable.
func (f *Function) AddEnvironment(key string, value any) {
	if f.Environment == nil {
		f.Environment = &Environment{Variables: make(map[string]any)}
	}
	f.Environment.Variables[key] = value
}

// Prepare makes the function wait for its role's policy so that the
// permissions exist when it is first invoked.
func (f *Function) Prepare() error {
	if r, ok := f.role.(*iam.Role); ok && r.DefaultPolicy() != nil && r.Stack() == f.Stack() {
		f.AddDependency(r.DefaultPolicy())
	}
	return nil
}

// FunctionProps configures ImplementFunction. Zero values take defaults.
type FunctionProps struct {
	// Path is the asset directory or file, used when Code is nil.
	Path         string
	Code         *Code
	Role         iam.IRole
	Handler      string
	Layers       []ILayerVersion
	MemorySize   int
	Timeout      int // seconds
	FunctionName string
	Runtime      string
	Description  string
	Environment  map[string]string
}

// ImplementFunction declares function "profile-for-lambda-<name>". When no
// role is given an execution role with AWSLambdaBasicExecutionRole is
// declared alongside it.
func ImplementFunction(st *stack.Stack, name string, props FunctionProps) (*Function, error) {
	code := props.Code
	if code == nil {
		if props.Path == "" {
			return nil, fmt.Errorf("function %q: %w", name, ErrNoCode)
		}
		var err error
		if code, err = CodeFromAsset(st, props.Path); err != nil {
			return nil, fmt.Errorf("function %q: %w", name, err)
		}
	}

	f := &Function{
		Handler:     orDefault(props.Handler, DefaultHandler),
		Runtime:     orDefault(props.Runtime, DefaultRuntime),
		MemorySize:  props.MemorySize,
		Timeout:     props.Timeout,
		Code:        code,
		Description: props.Description,
	}
	if f.MemorySize == 0 {
		f.MemorySize = DefaultMemorySize
	}
	if f.Timeout == 0 {
		f.Timeout = DefaultTimeout
	}
	fnName := props.FunctionName
	if fnName == "" {
		fnName = name
	}
	f.FunctionName = fnName
	for _, l := range props.Layers {
		f.Layers = append(f.Layers, l.LayerVersionArn())
	}
	for k, v := range props.Environment {
		f.AddEnvironment(k, v)
	}

	if err := st.Add("profile-for-lambda-"+name, f); err != nil {
		return nil, err
	}

	f.role = props.Role
	if f.role == nil {
		role, err := iam.NewRole(st, f.ID()+"-ServiceRole", iam.RoleProps{
			AssumedBy:       intrinsics.ServicePrincipal{"lambda.amazonaws.com"},
			ManagedPolicies: []any{iam.ManagedPolicyArn("service-role/AWSLambdaBasicExecutionRole")},
		})
		if err != nil {
			return nil, err
		}
		f.role = role
	}
	f.Role = f.role.Arn()

	log.WithField("function", fnName).WithField("runtime", f.Runtime).Debug("lambda declared")
	return f, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ImportedFunction is a function referenced by ARN.
type ImportedFunction struct {
	st  *stack.Stack
	id  string
	arn any
}

func (f *ImportedFunction) Arn() any            { return f.arn }
func (f *ImportedFunction) Stack() *stack.Stack { return f.st }
func (f *ImportedFunction) ID() string          { return f.id }

// Name returns the function name for literal ARNs and the ARN otherwise;
// Lambda accepts both wherever a function name is expected.
func (f *ImportedFunction) Name() any {
	if s, ok := f.arn.(string); ok {
		for i := len(s) - 1; i >= 0; i-- {
			if s[i] == ':' {
				return s[i+1:]
			}
		}
	}
	return f.arn
}

func (f *ImportedFunction) AddToRolePolicy(*intrinsics.PolicyStatement) error { return nil }

// FunctionFromArn references an existing function.
func FunctionFromArn(st *stack.Stack, id string, arn any) (*ImportedFunction, error) {
	if err := st.Import(id); err != nil {
		return nil, err
	}
	return &ImportedFunction{st: st, id: id, arn: arn}, nil
}

// FunctionFromName references arn:aws:lambda:<region>:<account>:function:<name>
// under "profile-for-lambda-function-<name>".
func FunctionFromName(st *stack.Stack, name string) (*ImportedFunction, error) {
	arn := st.FormatArn(stack.ArnFormat{Service: "lambda", Resource: "function:" + name})
	return FunctionFromArn(st, "profile-for-lambda-function-"+name, arn)
}

// ILayerVersion is a layer that functions can reference.
type ILayerVersion interface {
	LayerVersionArn() any
}

// LayerVersion is an imported layer version.
type LayerVersion struct {
	arn any
}

func (l LayerVersion) LayerVersionArn() any { return l.arn }

// LayerFromArn references arn:aws:lambda:<region>:<account>:layer:<name>:<version>
// under "profile-for-lambda-layer-<name>".
func LayerFromArn(st *stack.Stack, name string, version int) (LayerVersion, error) {
	if err := st.Import("profile-for-lambda-layer-" + name); err != nil {
		return LayerVersion{}, err
	}
	arn := st.FormatArn(stack.ArnFormat{Service: "lambda", Resource: fmt.Sprintf("layer:%s:%d", name, version)})
	return LayerVersion{arn: arn}, nil
}
