// Package scheduler declares EventBridge Scheduler schedules that run ECS
// tasks, Lambda functions, Glue jobs or state machines.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/stack"
)

// Target types.
const (
	TargetECS          = "ecs"
	TargetLambda       = "lambda"
	TargetGlue         = "glue"
	TargetStepFunction = "stepfunction"
)

// Universal targets calling an AWS API.
const (
	ECSRunTaskArn     = "arn:aws:scheduler:::aws-sdk:ecs:runTask"
	GlueStartRunArn   = "arn:aws:scheduler:::aws-sdk:glue:startJobRun"
	FlexibleWindowOff = "OFF"
)

// ErrUnknownTargetType is returned for a target type without an explicit
// target.
var ErrUnknownTargetType = errors.New("unknown schedule target type")

// Target is what a schedule invokes.
type Target struct {
	Arn     any
	RoleArn any
	Input   any
}

type FlexibleTimeWindow struct {
	Mode string
}

// Schedule is an AWS::Scheduler::Schedule.
type Schedule struct {
	stack.Construct            `json:"-"`
	Name                       string
	Description                string
	GroupName                  string
	ScheduleExpression         string
	ScheduleExpressionTimezone string
	StartDate                  string
	EndDate                    string
	FlexibleTimeWindow         FlexibleTimeWindow
	KmsKeyArn                  any
	State                      string
	Target                     *Target
}

func (*Schedule) ResourceType() string { return "AWS::Scheduler::Schedule" }

// Arn returns the schedule ARN.
func (s *Schedule) Arn() any { return s.GetAtt("Arn") }

// ScheduleProps configures GetSchedule.
type ScheduleProps struct {
	// ScheduleExpression is e.g. "cron(0 0 * * ? *)" or "rate(1 hour)".
	ScheduleExpression string
	TargetType         string
	ResourceArn        any
	RoleArn            any

	// ECS targets.
	ClusterArn      any
	SubnetIDs       []string
	SecurityGroupID any
	// LaunchType defaults to FARGATE, PlatformVersion to LATEST,
	// AssignPublicIP to DISABLED and TaskCount to 1.
	LaunchType      string
	TaskCount       int
	PlatformVersion string
	AssignPublicIP  string

	// Input is sent as JSON to lambda, glue and stepfunction targets.
	Input map[string]any
	// Target replaces the target built from TargetType.
	Target *Target

	// ID defaults to "Scheduler-<name>".
	ID string
	// FlexibleTimeWindow defaults to OFF.
	FlexibleTimeWindow string
	Description        string
	StartDate          string
	EndDate            string
	GroupName          string
	KmsKeyArn          any
	Timezone           string
	State              string
}

type awsvpcConfiguration struct {
	Subnets        []string
	SecurityGroups []any
	AssignPublicIp string
}

type networkConfiguration struct {
	AwsvpcConfiguration awsvpcConfiguration
}

// runTaskInput is the ecs:RunTask request; field order is the rendered
// key order.
type runTaskInput struct {
	TaskDefinition       any
	Cluster              any
	Count                int
	LaunchType           string
	PlatformVersion      string
	NetworkConfiguration networkConfiguration
	PlacementConstraints []any
	PlacementStrategy    []any
	Tags                 []any
	EnableECSManagedTags bool
}

// GetSchedule declares schedule name.
func GetSchedule(st *stack.Stack, name string, props ScheduleProps) (*Schedule, error) {
	target := props.Target
	if target == nil {
		var err error
		if target, err = buildTarget(props); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", name, err)
		}
	}

	s := &Schedule{
		Name:                       name,
		Description:                props.Description,
		GroupName:                  props.GroupName,
		ScheduleExpression:         props.ScheduleExpression,
		ScheduleExpressionTimezone: props.Timezone,
		StartDate:                  props.StartDate,
		EndDate:                    props.EndDate,
		FlexibleTimeWindow:         FlexibleTimeWindow{Mode: or(props.FlexibleTimeWindow, FlexibleWindowOff)},
		KmsKeyArn:                  props.KmsKeyArn,
		State:                      props.State,
		Target:                     target,
	}
	id := props.ID
	if id == "" {
		id = "Scheduler-" + name
	}
	if err := st.Add(id, s); err != nil {
		return nil, err
	}
	log.WithField("schedule", name).WithField("target", props.TargetType).Debug("schedule declared")
	return s, nil
}

func buildTarget(props ScheduleProps) (*Target, error) {
	var input any
	if len(props.Input) > 0 {
		var err error
		if input, err = intrinsics.JSONString(props.Input); err != nil {
			return nil, err
		}
	}

	switch props.TargetType {
	case TargetECS:
		count := props.TaskCount
		if count == 0 {
			count = 1
		}
		groups := []any{}
		if props.SecurityGroupID != nil {
			groups = append(groups, props.SecurityGroupID)
		}
		subnets := props.SubnetIDs
		if subnets == nil {
			subnets = []string{}
		}
		run, err := intrinsics.JSONString(runTaskInput{
			TaskDefinition:  props.ResourceArn,
			Cluster:         props.ClusterArn,
			Count:           count,
			LaunchType:      or(props.LaunchType, "FARGATE"),
			PlatformVersion: or(props.PlatformVersion, "LATEST"),
			NetworkConfiguration: networkConfiguration{AwsvpcConfiguration: awsvpcConfiguration{
				Subnets:        subnets,
				SecurityGroups: groups,
				AssignPublicIp: or(props.AssignPublicIP, "DISABLED"),
			}},
			PlacementConstraints: []any{},
			PlacementStrategy:    []any{},
			Tags:                 []any{},
			EnableECSManagedTags: true,
		})
		if err != nil {
			return nil, err
		}
		return &Target{Arn: ECSRunTaskArn, RoleArn: props.RoleArn, Input: run}, nil
	case TargetLambda, TargetStepFunction:
		return &Target{Arn: props.ResourceArn, RoleArn: props.RoleArn, Input: input}, nil
	case TargetGlue:
		return &Target{Arn: GlueStartRunArn, RoleArn: props.RoleArn, Input: input}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTargetType, props.TargetType)
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
