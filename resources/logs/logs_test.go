package logs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/resources/lambda"
	"github.com/lex00/cdkutils-go/stack"
)

func newFunction(t *testing.T, st *stack.Stack) *lambda.Function {
	t.Helper()
	fn, err := lambda.ImplementFunction(st, "notifier", lambda.FunctionProps{Code: lambda.CodeFromInline("x")})
	require.NoError(t, err)
	return fn
}

func TestPatterns(t *testing.T) {
	assert.Equal(t, `{ ($.type = "*Succeeded*") || ($.type = "*Failed*") }`, StatusPattern().PatternString())
	assert.Equal(t, "ERROR", Literal("ERROR").PatternString())

	latency, err := NumberValue("$.latency", ">=", 1.5)
	require.NoError(t, err)
	all, err := AllOf(latency, Exists("$.requestId"))
	require.NoError(t, err)
	assert.Equal(t, `{ ($.latency >= 1.5) && ($.requestId = *) }`, all.PatternString())

	_, err = StringValue("$.type", ">", "x")
	assert.ErrorIs(t, err, ErrUnknownComparison)
	_, err = NumberValue("$.n", "~", 1)
	assert.ErrorIs(t, err, ErrUnknownComparison)
	_, err = AnyOf()
	assert.Error(t, err)
}

func TestCreateLogGroup_Defaults(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	g, err := CreateLogGroup(st, "/aws/etl/ingest", LogGroupProps{})
	require.NoError(t, err)
	assert.Equal(t, "profile-for-log---aws--etl--ingest", g.ID())

	tmpl, err := st.Synth()
	require.NoError(t, err)
	def := tmpl.Resources[g.LogicalID()]
	assert.Equal(t, "Delete", def.DeletionPolicy)
	assert.Equal(t, int64(60), def.Properties["RetentionInDays"])
	assert.Equal(t, "/aws/etl/ingest", def.Properties["LogGroupName"])
}

func TestCreateLogGroup_Overrides(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	g, err := CreateLogGroup(st, "audit", LogGroupProps{ID: "AuditLogs", Removal: stack.RemovalRetain, RetentionDays: 365})
	require.NoError(t, err)
	assert.Equal(t, "AuditLogs", g.ID())
	assert.Equal(t, 365, g.RetentionInDays)
}

func TestAddLambdaSubscription_DefaultPattern(t *testing.T) {
	st := stack.New("etl", stack.Environment{Account: "123456789012", Region: "eu-central-1"})
	fn := newFunction(t, st)
	g, err := LogGroupFromName(st, "/aws/vendedlogs/states/nightly", "")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:logs:eu-central-1:123456789012:log-group:/aws/vendedlogs/states/nightly:*", g.Arn())

	f, err := AddLambdaSubscription(g, fn, "NightlyStatus", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPattern().PatternString(), f.FilterPattern)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	def := tmpl.Resources["NightlyStatus"]
	assert.Equal(t, "AWS::Logs::SubscriptionFilter", def.Type)
	require.Len(t, def.DependsOn, 1)
	assert.Equal(t, "AWS::Lambda::Permission", tmpl.Resources[def.DependsOn[0]].Type)
}

func TestAddSuccessAndErrorSubscription(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	fn := newFunction(t, st)
	g, err := CreateLogGroup(st, "ingest", LogGroupProps{})
	require.NoError(t, err)

	filters, err := AddSuccessAndErrorSubscription(g, "ingest", fn, "ERROR", "SUCCESS")
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, "profile-for-log-ingest/ingestLogGroupErrorSubscription", filters[0].ID())
	assert.Equal(t, "log_subscription_error_ingest", filters[0].FilterName)
	assert.Equal(t, "profile-for-log-ingest/ingestLogGroupSuccessSubscription", filters[1].ID())
	assert.Equal(t, "log_subscription_success_ingest", filters[1].FilterName)
	assert.Equal(t, "SUCCESS", filters[1].FilterPattern)

	only, err := AddSuccessAndErrorSubscription(g, "audit", fn, "", "OK")
	require.NoError(t, err)
	assert.Len(t, only, 1)

	_, err = st.Synth()
	require.NoError(t, err)
}
