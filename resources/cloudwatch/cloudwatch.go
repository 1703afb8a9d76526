// Package cloudwatch declares metric alarms.
package cloudwatch

import (
	"errors"
	"fmt"

	"github.com/lex00/cdkutils-go/stack"
)

// ErrUnknownComparison is returned for an unknown comparison operator.
var ErrUnknownComparison = errors.New("unknown comparison operator")

// Comparison operators.
const (
	GreaterThanOrEqualToThreshold = "GreaterThanOrEqualToThreshold"
	GreaterThanThreshold          = "GreaterThanThreshold"
	LessThanThreshold             = "LessThanThreshold"
	LessThanOrEqualToThreshold    = "LessThanOrEqualToThreshold"
)

// Dimension narrows a metric.
type Dimension struct {
	Name  string
	Value any
}

// Metric identifies a CloudWatch metric.
type Metric struct {
	Namespace  string
	MetricName string
	Dimensions []Dimension
	Statistic  string // default "Average"
	Period     int    // seconds, default 300
}

// Alarm is an AWS::CloudWatch::Alarm.
type Alarm struct {
	stack.Construct    `json:"-"`
	AlarmName          string
	AlarmDescription   string
	Namespace          string
	MetricName         string
	Dimensions         []Dimension
	Statistic          string
	Period             int
	Threshold          *float64
	EvaluationPeriods  int
	DatapointsToAlarm  int
	ComparisonOperator string
	TreatMissingData   string
	AlarmActions       []any
	OKActions          []any
}

func (*Alarm) ResourceType() string { return "AWS::CloudWatch::Alarm" }

// AlarmProps configures NewAlarm. Threshold and EvaluationPeriods are
// required; the operator defaults to GreaterThanOrEqualToThreshold.
type AlarmProps struct {
	AlarmName          string
	AlarmDescription   string
	Threshold          float64
	EvaluationPeriods  int
	DatapointsToAlarm  int
	ComparisonOperator string
	TreatMissingData   string
	AlarmActions       []any
}

// NewAlarm declares an alarm on metric under id.
func NewAlarm(st *stack.Stack, id string, metric Metric, props AlarmProps) (*Alarm, error) {
	op := props.ComparisonOperator
	switch op {
	case "":
		op = GreaterThanOrEqualToThreshold
	case GreaterThanOrEqualToThreshold, GreaterThanThreshold, LessThanThreshold, LessThanOrEqualToThreshold:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownComparison, op)
	}
	if props.EvaluationPeriods < 1 {
		return nil, fmt.Errorf("alarm %q: evaluation periods must be at least 1", id)
	}

	threshold := props.Threshold
	a := &Alarm{
		AlarmName:          props.AlarmName,
		AlarmDescription:   props.AlarmDescription,
		Namespace:          metric.Namespace,
		MetricName:         metric.MetricName,
		Dimensions:         metric.Dimensions,
		Statistic:          metric.Statistic,
		Period:             metric.Period,
		Threshold:          &threshold,
		EvaluationPeriods:  props.EvaluationPeriods,
		DatapointsToAlarm:  props.DatapointsToAlarm,
		ComparisonOperator: op,
		TreatMissingData:   props.TreatMissingData,
		AlarmActions:       props.AlarmActions,
	}
	if a.Statistic == "" {
		a.Statistic = "Average"
	}
	if a.Period == 0 {
		a.Period = 300
	}
	if err := st.Add(id, a); err != nil {
		return nil, err
	}
	return a, nil
}
