// Package apigateway declares REST APIs with Lambda proxy integrations,
// CORS preflight methods, a deployment stage and usage plans.
package apigateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/stack"
)

// Defaults applied when the corresponding option is unset.
const (
	DefaultStageName     = "prod"
	DefaultLoggingLevel  = "INFO"
	DefaultRateLimit     = 10000
	DefaultBurstLimit    = 1000
	DefaultQuotaLimit    = 100000
	DefaultQuotaPeriod   = "DAY"
	DefaultRequestFormat = "application/json"
)

// DefaultRequestTemplates answers every JSON request with status 200.
var DefaultRequestTemplates = map[string]string{DefaultRequestFormat: `{ "statusCode": "200" }`}

var (
	// AllOrigins allows requests from any origin.
	AllOrigins = []string{"*"}
	// AllMethods lists every HTTP method a preflight allows.
	AllMethods = []string{"OPTIONS", "GET", "PUT", "POST", "DELETE", "PATCH", "HEAD"}
	// DefaultHeaders are the request headers a preflight allows.
	DefaultHeaders = []string{"Content-Type", "X-Amz-Date", "Authorization", "X-Api-Key", "X-Amz-Security-Token", "X-Amz-User-Agent"}
)

// ErrDuplicateMethod is returned when a resource already has the method.
var ErrDuplicateMethod = errors.New("method already defined")

// CorsOptions configures CORS preflight OPTIONS methods.
type CorsOptions struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
}

// DefaultCors allows all origins and all methods.
func DefaultCors() *CorsOptions {
	return &CorsOptions{AllowOrigins: AllOrigins, AllowMethods: AllMethods}
}

// DeployOptions configures the deployment stage.
type DeployOptions struct {
	// StageName defaults to prod and LoggingLevel to INFO.
	StageName    string
	LoggingLevel string
	// DataTraceEnabled defaults to true.
	DataTraceEnabled    *bool
	ThrottlingRateLimit float64
	ThrottlingBurst     int
}

// APIProps configures DeployRestAPI.
type APIProps struct {
	// Description defaults to "API for <name>".
	Description string
	Cors        *CorsOptions
	Deploy      *DeployOptions
}

// RestAPI is an AWS::ApiGateway::RestApi.
type RestAPI struct {
	stack.Construct `json:"-"`
	Name            string
	Description     string
	Body            any

	cors       *CorsOptions
	root       *Resource
	deployment *Deployment
	stage      *Stage
	methods    []*Method
}

func (*RestAPI) ResourceType() string { return "AWS::ApiGateway::RestApi" }

// Root returns the "/" resource.
func (a *RestAPI) Root() *Resource { return a.root }

// DeploymentStage returns the stage the API is deployed to.
func (a *RestAPI) DeploymentStage() *Stage { return a.stage }

// Methods returns the declared methods.
func (a *RestAPI) Methods() []*Method { return append([]*Method(nil), a.methods...) }

// URL returns the invoke URL of the deployment stage.
func (a *RestAPI) URL() any {
	return intrinsics.Concat("https://", a.Ref(), ".execute-api.", a.Stack().Region(), ".",
		intrinsics.AWS_URL_SUFFIX, "/", a.stage.StageName, "/")
}

// ArnForExecuteAPI returns the execute-api ARN for method on path in any
// stage. Empty method or path match everything.
func (a *RestAPI) ArnForExecuteAPI(method, path string) any {
	if method == "" {
		method = "*"
	}
	if path == "" {
		path = "/*"
	}
	st := a.Stack()
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":execute-api:", st.Region(), ":", st.Account(), ":",
		a.Ref(), "/*/", method, path)
}

// Deployment is an AWS::ApiGateway::Deployment. It depends on every method
// so that the snapshot it takes is complete.
type Deployment struct {
	stack.Construct `json:"-"`
	RestApiId       any
	Description     string

	api *RestAPI
}

func (*Deployment) ResourceType() string { return "AWS::ApiGateway::Deployment" }

func (d *Deployment) Prepare() error {
	for _, m := range d.api.methods {
		d.AddDependency(m)
	}
	return nil
}

type MethodSetting struct {
	ResourcePath         string
	HttpMethod           string
	LoggingLevel         string
	DataTraceEnabled     bool
	ThrottlingRateLimit  float64
	ThrottlingBurstLimit int
}

// Stage is an AWS::ApiGateway::Stage.
type Stage struct {
	stack.Construct `json:"-"`
	RestApiId       any
	DeploymentId    any
	StageName       string
	MethodSettings  []MethodSetting
}

func (*Stage) ResourceType() string { return "AWS::ApiGateway::Stage" }

// Account is the region-wide AWS::ApiGateway::Account setting that lets API
// Gateway write execution logs.
type Account struct {
	stack.Construct   `json:"-"`
	CloudWatchRoleArn any
}

func (*Account) ResourceType() string { return "AWS::ApiGateway::Account" }

// DeployRestAPI declares API name under "profile-for-api-<name>" with a
// CORS preflight on the root and a logged deployment stage.
func DeployRestAPI(st *stack.Stack, name string, props APIProps) (*RestAPI, error) {
	description := props.Description
	if description == "" {
		description = "API for " + name
	}
	cors := props.Cors
	if cors == nil {
		cors = DefaultCors()
	}
	api := &RestAPI{Name: name, Description: description, cors: cors}
	if err := st.Add("profile-for-api-"+name, api); err != nil {
		return nil, err
	}
	api.root = &Resource{api: api, id: api.GetAtt("RootResourceId"), path: "/", methods: make(map[string]*Method)}

	if err := api.deploy(props.Deploy); err != nil {
		return nil, err
	}
	if _, err := api.root.addPreflight(cors); err != nil {
		return nil, err
	}
	log.WithField("api", name).WithField("stage", api.stage.StageName).Debug("rest api declared")
	return api, nil
}

func (a *RestAPI) deploy(opts *DeployOptions) error {
	if opts == nil {
		opts = &DeployOptions{}
	}
	st := a.Stack()

	role, err := iam.NewRole(st, a.ID()+"-CloudWatchRole", iam.RoleProps{
		AssumedBy:       intrinsics.ServicePrincipal{"apigateway.amazonaws.com"},
		ManagedPolicies: []any{iam.ManagedPolicyArn("service-role/AmazonAPIGatewayPushToCloudWatchLogs")},
	})
	if err != nil {
		return err
	}
	account := &Account{CloudWatchRoleArn: role.Arn()}
	if err := st.AddChild(a, "Account", account); err != nil {
		return err
	}
	account.AddDependency(a)

	a.deployment = &Deployment{RestApiId: a.Ref(), Description: "Automatically created by the RestApi construct", api: a}
	if err := st.AddChild(a, "Deployment", a.deployment); err != nil {
		return err
	}

	stageName := opts.StageName
	if stageName == "" {
		stageName = DefaultStageName
	}
	trace := true
	if opts.DataTraceEnabled != nil {
		trace = *opts.DataTraceEnabled
	}
	level := opts.LoggingLevel
	if level == "" {
		level = DefaultLoggingLevel
	}
	a.stage = &Stage{
		RestApiId:    a.Ref(),
		DeploymentId: a.deployment.Ref(),
		StageName:    stageName,
		MethodSettings: []MethodSetting{{
			ResourcePath:         "/*",
			HttpMethod:           "*",
			LoggingLevel:         level,
			DataTraceEnabled:     trace,
			ThrottlingRateLimit:  opts.ThrottlingRateLimit,
			ThrottlingBurstLimit: opts.ThrottlingBurst,
		}},
	}
	if err := st.AddChild(a, "DeploymentStage."+stageName, a.stage); err != nil {
		return err
	}
	a.stage.AddDependency(account)
	return nil
}

// Resource is a path of the API. The root resource is implicit; others are
// declared as AWS::ApiGateway::Resource.
type Resource struct {
	api      *RestAPI
	id       any
	path     string
	decl     *PathResource
	children map[string]*Resource
	methods  map[string]*Method
}

// Path returns the resource path, e.g. "/orders/{id}".
func (r *Resource) Path() string { return r.path }

// ResourceID returns the API Gateway resource ID.
func (r *Resource) ResourceID() any { return r.id }

// API returns the owning API.
func (r *Resource) API() *RestAPI { return r.api }

// PathResource is an AWS::ApiGateway::Resource.
type PathResource struct {
	stack.Construct `json:"-"`
	ParentId        any
	PathPart        string
	RestApiId       any
}

func (*PathResource) ResourceType() string { return "AWS::ApiGateway::Resource" }

// owner is the construct children of r are declared under.
func (r *Resource) owner() stack.Resource {
	if r.decl != nil {
		return r.decl
	}
	return r.api
}

// AddResource adds path part name below parent with a CORS preflight.
// cors defaults to the API's CORS options.
func AddResource(parent *Resource, name string, cors *CorsOptions) (*Resource, error) {
	if _, ok := parent.children[name]; ok {
		return nil, fmt.Errorf("%w: resource %q below %s", stack.ErrDuplicateID, name, parent.path)
	}
	decl := &PathResource{ParentId: parent.id, PathPart: name, RestApiId: parent.api.Ref()}
	if err := parent.api.Stack().AddChild(parent.owner(), name, decl); err != nil {
		return nil, err
	}
	path := strings.TrimSuffix(parent.path, "/") + "/" + name
	child := &Resource{api: parent.api, id: decl.Ref(), path: path, decl: decl, methods: make(map[string]*Method)}
	if parent.children == nil {
		parent.children = make(map[string]*Resource)
	}
	parent.children[name] = child

	if cors == nil {
		cors = parent.api.cors
	}
	if _, err := child.addPreflight(cors); err != nil {
		return nil, err
	}
	return child, nil
}
