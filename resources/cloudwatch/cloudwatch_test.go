package cloudwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/cdkutils-go/stack"
)

func TestNewAlarm(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	metric := Metric{
		Namespace:  "AWS/SQS",
		MetricName: "ApproximateNumberOfMessagesVisible",
		Dimensions: []Dimension{{Name: "QueueName", Value: "ingest"}},
	}
	a, err := NewAlarm(st, "backlog", metric, AlarmProps{Threshold: 0, EvaluationPeriods: 1})
	require.NoError(t, err)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	def := tmpl.Resources[a.LogicalID()]
	assert.Equal(t, "AWS::CloudWatch::Alarm", def.Type)
	assert.Equal(t, float64(0), def.Properties["Threshold"])
	assert.Equal(t, "Average", def.Properties["Statistic"])
	assert.Equal(t, int64(300), def.Properties["Period"])
	assert.Equal(t, GreaterThanOrEqualToThreshold, def.Properties["ComparisonOperator"])
	assert.Equal(t, []any{map[string]any{"Name": "QueueName", "Value": "ingest"}}, def.Properties["Dimensions"])
}

func TestNewAlarm_Invalid(t *testing.T) {
	st := stack.New("etl", stack.Environment{})
	_, err := NewAlarm(st, "a", Metric{}, AlarmProps{EvaluationPeriods: 1, ComparisonOperator: "Above"})
	assert.ErrorIs(t, err, ErrUnknownComparison)

	_, err = NewAlarm(st, "b", Metric{}, AlarmProps{})
	assert.Error(t, err)
}
