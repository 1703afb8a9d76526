package apigateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/stack"
)

func pinned() *stack.Stack {
	return stack.New("api", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
}

func countType(t *testing.T, st *stack.Stack, typ string) int {
	t.Helper()
	tmpl, err := st.Synth()
	require.NoError(t, err)
	var n int
	for _, def := range tmpl.Resources {
		if def.Type == typ {
			n++
		}
	}
	return n
}

func TestDeployRestAPI_Defaults(t *testing.T) {
	st := pinned()
	api, err := DeployRestAPI(st, "orders", APIProps{})
	require.NoError(t, err)

	assert.Equal(t, "profile-for-api-orders", api.ID())
	assert.Equal(t, "API for orders", api.Description)
	assert.Equal(t, "prod", api.DeploymentStage().StageName)
	assert.Equal(t, "/", api.Root().Path())
	require.Len(t, api.Methods(), 1)
	assert.Equal(t, "OPTIONS", api.Methods()[0].HttpMethod)

	tmpl, err := st.Synth()
	require.NoError(t, err)

	def := tmpl.Resources["profileforapiorders"]
	assert.Equal(t, "AWS::ApiGateway::RestApi", def.Type)
	assert.Equal(t, "orders", def.Properties["Name"])

	var stage, deployment map[string]any
	var stageDeps []string
	for _, d := range tmpl.Resources {
		switch d.Type {
		case "AWS::ApiGateway::Stage":
			stage = d.Properties
			stageDeps = d.DependsOn
		case "AWS::ApiGateway::Deployment":
			deployment = d.Properties
		}
	}
	require.NotNil(t, stage)
	require.NotNil(t, deployment)
	assert.Len(t, stageDeps, 1)
	settings := stage["MethodSettings"].([]any)[0].(map[string]any)
	assert.Equal(t, "INFO", settings["LoggingLevel"])
	assert.Equal(t, true, settings["DataTraceEnabled"])
}

func TestDeployRestAPI_Duplicate(t *testing.T) {
	st := pinned()
	_, err := DeployRestAPI(st, "orders", APIProps{})
	require.NoError(t, err)
	_, err = DeployRestAPI(st, "orders", APIProps{})
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
}

func TestAddResource_AndMethod(t *testing.T) {
	st := pinned()
	api, err := DeployRestAPI(st, "orders", APIProps{Cors: &CorsOptions{AllowOrigins: []string{"https://example.com"}}})
	require.NoError(t, err)
	fn, err := lambda.ImplementFunction(st, "orders", lambda.FunctionProps{Code: lambda.CodeFromInline("x")})
	require.NoError(t, err)

	orders, err := AddResource(api.Root(), "orders", nil)
	require.NoError(t, err)
	item, err := AddResource(orders, "{id}", nil)
	require.NoError(t, err)
	assert.Equal(t, "/orders/{id}", item.Path())

	_, err = AddResource(api.Root(), "orders", nil)
	assert.ErrorIs(t, err, stack.ErrDuplicateID)

	m, err := AddMethod(item, "get", IntegrateLambda(fn, nil), MethodOptions{ApiKeyRequired: true})
	require.NoError(t, err)
	assert.Equal(t, "GET", m.HttpMethod)
	assert.Equal(t, "AWS_PROXY", m.Integration.Type)
	assert.Equal(t, DefaultRequestTemplates, m.Integration.RequestTemplates)

	_, err = AddMethod(item, "GET", IntegrateLambda(fn, nil), MethodOptions{})
	assert.ErrorIs(t, err, ErrDuplicateMethod)

	// root, /orders and /orders/{id} preflights plus GET
	assert.Len(t, api.Methods(), 4)
	assert.Equal(t, 1, countType(t, st, "AWS::Lambda::Permission"))

	preflight := api.Methods()[0].Integration.IntegrationResponses[0].ResponseParameters
	assert.Equal(t, "'https://example.com'", preflight["method.response.header.Access-Control-Allow-Origin"])
	assert.Equal(t, "'Origin'", preflight["method.response.header.Vary"])
}

func TestDeployment_DependsOnMethods(t *testing.T) {
	st := pinned()
	api, err := DeployRestAPI(st, "orders", APIProps{})
	require.NoError(t, err)
	_, err = AddResource(api.Root(), "orders", nil)
	require.NoError(t, err)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	for _, d := range tmpl.Resources {
		if d.Type == "AWS::ApiGateway::Deployment" {
			assert.Len(t, d.DependsOn, 2)
		}
	}
}

func TestAddUsagePlan(t *testing.T) {
	st := pinned()
	api, err := DeployRestAPI(st, "orders", APIProps{})
	require.NoError(t, err)

	plan, err := AddUsagePlan(st, api, "partners", UsagePlanProps{})
	require.NoError(t, err)
	assert.Equal(t, "api-usage-partners", plan.ID())
	assert.Equal(t, &Quota{Limit: 100000, Period: "DAY"}, plan.Quota)
	assert.Equal(t, &Throttle{RateLimit: 10000, BurstLimit: 1000}, plan.Throttle)

	_, err = AddUsagePlan(st, api, "weird", UsagePlanProps{Quota: &Quota{Limit: 1, Period: "HOUR"}})
	assert.ErrorContains(t, err, "unknown quota period")
}

const ordersSpec = `openapi: 3.0.1
info:
  title: orders
  version: "1.0"
paths:
  /orders:
    get:
      operationId: listOrders
      responses:
        "200":
          description: ok
  /health:
    get:
      operationId: health
      responses:
        "200":
          description: ok
      x-amazon-apigateway-integration:
        type: mock
`

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSpecRestAPI(t *testing.T) {
	st := pinned()
	fn, err := lambda.ImplementFunction(st, "orders", lambda.FunctionProps{Code: lambda.CodeFromInline("x")})
	require.NoError(t, err)

	doc, err := LoadSpec(context.Background(), writeSpec(t, ordersSpec))
	require.NoError(t, err)

	api, err := SpecRestAPI(st, "orders", doc, map[string]lambda.IFunction{"listOrders": fn}, APIProps{})
	require.NoError(t, err)

	body := api.Body.(map[string]any)
	paths := body["paths"].(map[string]any)
	get := paths["/orders"].(map[string]any)["get"].(map[string]any)
	integration := get[IntegrationExtension].(map[string]any)
	assert.Equal(t, "aws_proxy", integration["type"])
	assert.Equal(t, "POST", integration["httpMethod"])
	assert.Contains(t, integration["uri"], "Fn::Join")

	health := paths["/health"].(map[string]any)["get"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "mock"}, health[IntegrationExtension])

	assert.Equal(t, 1, countType(t, st, "AWS::Lambda::Permission"))
	assert.Equal(t, 1, countType(t, st, "AWS::ApiGateway::Stage"))
}

func TestSpecRestAPI_MissingIntegration(t *testing.T) {
	st := pinned()
	doc, err := LoadSpec(context.Background(), writeSpec(t, ordersSpec))
	require.NoError(t, err)

	_, err = SpecRestAPI(st, "orders", doc, nil, APIProps{})
	assert.ErrorIs(t, err, ErrMissingIntegration)
}

func TestLoadSpec_Invalid(t *testing.T) {
	_, err := LoadSpec(context.Background(), writeSpec(t, "openapi: 3.0.1\ninfo: {}\npaths: {}\n"))
	assert.Error(t, err)
}
