package apigateway

import (
	"fmt"
	"strings"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/stack"
)

type IntegrationResponse struct {
	StatusCode         string
	ResponseParameters map[string]string
}

// Integration is the backend a method forwards requests to.
type Integration struct {
	Type                  string
	IntegrationHttpMethod string
	Uri                   any
	RequestTemplates      map[string]string
	IntegrationResponses  []IntegrationResponse

	fn lambda.IFunction
}

// IntegrateLambda proxies requests to fn. requestTemplates defaults to
// DefaultRequestTemplates.
func IntegrateLambda(fn lambda.IFunction, requestTemplates map[string]string) *Integration {
	if requestTemplates == nil {
		requestTemplates = DefaultRequestTemplates
	}
	return &Integration{
		Type:                  "AWS_PROXY",
		IntegrationHttpMethod: "POST",
		Uri:                   lambdaInvocationURI(fn.Stack(), fn.Arn()),
		RequestTemplates:      requestTemplates,
		fn:                    fn,
	}
}

func lambdaInvocationURI(st *stack.Stack, fnArn any) any {
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":apigateway:", st.Region(),
		":lambda:path/2015-03-31/functions/", fnArn, "/invocations")
}

type MethodResponse struct {
	StatusCode         string
	ResponseParameters map[string]bool
}

// Method is an AWS::ApiGateway::Method.
type Method struct {
	stack.Construct   `json:"-"`
	HttpMethod        string
	ResourceId        any
	RestApiId         any
	AuthorizationType string
	ApiKeyRequired    bool
	Integration       *Integration
	MethodResponses   []MethodResponse
}

func (*Method) ResourceType() string { return "AWS::ApiGateway::Method" }

// MethodOptions configures AddMethod.
type MethodOptions struct {
	ApiKeyRequired bool
}

// AddMethod declares httpMethod on r. Lambda integrations get a permission
// letting this API invoke the function.
func AddMethod(r *Resource, httpMethod string, integration *Integration, opts MethodOptions) (*Method, error) {
	httpMethod = strings.ToUpper(httpMethod)
	if _, ok := r.methods[httpMethod]; ok {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicateMethod, httpMethod, r.path)
	}
	m := &Method{
		HttpMethod:        httpMethod,
		ResourceId:        r.id,
		RestApiId:         r.api.Ref(),
		AuthorizationType: "NONE",
		ApiKeyRequired:    opts.ApiKeyRequired,
		Integration:       integration,
	}
	if err := r.api.Stack().AddChild(r.owner(), httpMethod, m); err != nil {
		return nil, err
	}
	r.methods[httpMethod] = m
	r.api.methods = append(r.api.methods, m)

	if integration != nil && integration.fn != nil {
		path := r.path
		if httpMethod == "ANY" {
			httpMethod = "*"
		}
		if _, err := lambda.AddPermission(integration.fn, "ApiPermission"+m.LogicalID(), "apigateway.amazonaws.com",
			r.api.ArnForExecuteAPI(httpMethod, path)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// addPreflight declares the CORS OPTIONS method answering with the
// allowed origins, methods and headers.
func (r *Resource) addPreflight(cors *CorsOptions) (*Method, error) {
	headers := cors.AllowHeaders
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	origins := cors.AllowOrigins
	if len(origins) == 0 {
		origins = AllOrigins
	}
	methods := cors.AllowMethods
	if len(methods) == 0 {
		methods = AllMethods
	}

	params := map[string]string{
		"method.response.header.Access-Control-Allow-Headers": "'" + strings.Join(headers, ",") + "'",
		"method.response.header.Access-Control-Allow-Origin":  "'" + origins[0] + "'",
		"method.response.header.Access-Control-Allow-Methods": "'" + strings.Join(methods, ",") + "'",
	}
	if len(origins) > 1 || origins[0] != "*" {
		params["method.response.header.Vary"] = "'Origin'"
	}
	declared := make(map[string]bool, len(params))
	for k := range params {
		declared[k] = true
	}

	integration := &Integration{
		Type:             "MOCK",
		RequestTemplates: map[string]string{DefaultRequestFormat: "{ statusCode: 200 }"},
		IntegrationResponses: []IntegrationResponse{
			{StatusCode: "204", ResponseParameters: params},
		},
	}
	m, err := AddMethod(r, "OPTIONS", integration, MethodOptions{})
	if err != nil {
		return nil, err
	}
	m.MethodResponses = []MethodResponse{{StatusCode: "204", ResponseParameters: declared}}
	return m, nil
}
