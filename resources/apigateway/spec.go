package apigateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/apex/log"
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/stack"
)

// IntegrationExtension is the OpenAPI extension API Gateway reads
// integrations from.
const IntegrationExtension = "x-amazon-apigateway-integration"

// ErrMissingIntegration is returned when an operation of an OpenAPI
// document has no integration.
var ErrMissingIntegration = errors.New("operation has no integration")

// LoadSpec reads and validates an OpenAPI 3 document.
func LoadSpec(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}

// SpecRestAPI declares API name from an OpenAPI document. Each operation
// is proxied to the function its operationId maps to in integrations, unless
// it already carries an x-amazon-apigateway-integration extension.
func SpecRestAPI(st *stack.Stack, name string, doc *openapi3.T, integrations map[string]lambda.IFunction, props APIProps) (*RestAPI, error) {
	type route struct{ method, path string }
	routes := make(map[string][]route)

	paths := doc.Paths.InMatchingOrder()
	for _, path := range paths {
		item := doc.Paths.Value(path)
		methods := make([]string, 0)
		ops := item.Operations()
		for method := range ops {
			methods = append(methods, method)
		}
		sort.Strings(methods)
		for _, method := range methods {
			op := ops[method]
			if _, ok := op.Extensions[IntegrationExtension]; ok {
				continue
			}
			fn, ok := integrations[op.OperationID]
			if !ok {
				return nil, fmt.Errorf("%w: %s %s (operationId %q)", ErrMissingIntegration, method, path, op.OperationID)
			}
			if op.Extensions == nil {
				op.Extensions = make(map[string]any)
			}
			op.Extensions[IntegrationExtension] = map[string]any{
				"type":                "aws_proxy",
				"httpMethod":          "POST",
				"uri":                 lambdaInvocationURI(st, fn.Arn()),
				"passthroughBehavior": "when_no_match",
			}
			routes[op.OperationID] = append(routes[op.OperationID], route{method, path})
		}
	}
	for id := range integrations {
		if _, ok := routes[id]; !ok {
			return nil, fmt.Errorf("integration %q matches no operation", id)
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("api %s: %w", name, err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("api %s: %w", name, err)
	}

	description := props.Description
	if description == "" {
		description = "API for " + name
	}
	api := &RestAPI{Name: name, Description: description, Body: body, cors: props.Cors}
	if err := st.Add("profile-for-api-"+name, api); err != nil {
		return nil, err
	}
	api.root = &Resource{api: api, id: api.GetAtt("RootResourceId"), path: "/", methods: make(map[string]*Method)}
	if err := api.deploy(props.Deploy); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(routes))
	for id := range routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, r := range routes[id] {
			sourceArn := api.ArnForExecuteAPI(r.method, r.path)
			permID := "ApiPermission" + stack.LogicalIDFor(api.ID(), r.method, r.path)
			if _, err := lambda.AddPermission(integrations[id], permID, "apigateway.amazonaws.com", sourceArn); err != nil {
				return nil, err
			}
		}
	}
	log.WithField("api", name).WithField("operations", len(ids)).Debug("openapi rest api declared")
	return api, nil
}
