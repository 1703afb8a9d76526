package stepfunctions

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/s3"
)

// Instance fleet role types.
const (
	FleetMaster = "MASTER"
	FleetCore   = "CORE"
	FleetTask   = "TASK"
)

// ErrMissingClusterConfig is returned when an EMR cluster lacks a required
// network or role setting.
var ErrMissingClusterConfig = errors.New("missing EMR cluster configuration")

// DefaultClusterID is where EmrCreateCluster leaves the cluster ID.
const DefaultClusterID Path = "$.cluster.ClusterId"

// SparkSubmitArgs returns the command-runner arguments that submit the
// script s3://bucket/file in cluster mode.
func SparkSubmitArgs(bucket, file string) []string {
	return []string{"spark-submit", "--deploy-mode", "cluster", s3.Path(bucket, file)}
}

// FleetConfig sizes one instance fleet.
type FleetConfig struct {
	InstanceTypes          []string
	TargetOnDemandCapacity int
	TargetSpotCapacity     int
	WeightedCapacity       int
	BidPrice               string
}

// InstanceFleet renders a fleet of role type MASTER, CORE or TASK. A TASK
// fleet with spot capacity terminates the cluster when no spot capacity is
// provisioned within 600 minutes.
func InstanceFleet(roleType string, f FleetConfig) (map[string]any, error) {
	switch roleType {
	case FleetMaster, FleetCore, FleetTask:
	default:
		return nil, fmt.Errorf("unknown instance fleet type %q", roleType)
	}
	configs := make([]any, 0, len(f.InstanceTypes))
	for _, it := range f.InstanceTypes {
		c := map[string]any{"InstanceType": it}
		if f.BidPrice != "" {
			c["BidPrice"] = f.BidPrice
		}
		if f.WeightedCapacity > 0 {
			c["WeightedCapacity"] = f.WeightedCapacity
		}
		configs = append(configs, c)
	}
	fleet := map[string]any{
		"InstanceFleetType":      roleType,
		"Name":                   roleType,
		"InstanceTypeConfigs":    configs,
		"TargetOnDemandCapacity": f.TargetOnDemandCapacity,
		"TargetSpotCapacity":     f.TargetSpotCapacity,
	}
	if roleType == FleetTask && f.TargetSpotCapacity > 0 {
		fleet["LaunchSpecifications"] = map[string]any{
			"SpotSpecification": map[string]any{
				"TimeoutAction":          "TERMINATE_CLUSTER",
				"TimeoutDurationMinutes": 600,
			},
		}
	}
	return fleet, nil
}

// EmrConfiguration is an application configuration classification.
type EmrConfiguration struct {
	Classification string
	Properties     map[string]string
}

// EmrClusterConfig describes the cluster EmrCreateCluster launches.
type EmrClusterConfig struct {
	Ec2SubnetID         string
	MasterSecurityGroup string
	SlaveSecurityGroup  string
	Master, Core, Task  FleetConfig

	// JobFlowRole is the EC2 instance profile; ServiceRole the EMR role.
	JobFlowRole string
	ServiceRole string

	Applications []string
	// BootstrapURI and LogURI are prefixed with s3://<bucket>/ when the
	// bucket is set and used as given otherwise.
	BootstrapBucket string
	BootstrapURI    string
	LogBucket       string
	LogURI          string

	ReleaseLabel         string
	StepConcurrencyLevel int
	Configurations       []EmrConfiguration
	Tags                 map[string]string
}

func (c EmrClusterConfig) validate() error {
	missing := map[string]string{
		"Ec2SubnetID":         c.Ec2SubnetID,
		"MasterSecurityGroup": c.MasterSecurityGroup,
		"SlaveSecurityGroup":  c.SlaveSecurityGroup,
		"JobFlowRole":         c.JobFlowRole,
		"ServiceRole":         c.ServiceRole,
		"ReleaseLabel":        c.ReleaseLabel,
	}
	var names []string
	for k, v := range missing {
		if v == "" {
			names = append(names, k)
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return fmt.Errorf("%w: %v", ErrMissingClusterConfig, names)
	}
	return nil
}

func s3URI(bucket, uri string) string {
	if bucket == "" {
		return uri
	}
	return s3.Path(bucket, uri)
}

func roleArn(name string) any {
	return intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":iam::", intrinsics.AWS_ACCOUNT_ID, ":role/", name)
}

// EmrCreateCluster launches an EMR cluster named clusterName. ResultPath
// defaults to "$.cluster" so that DefaultClusterID finds the cluster ID.
func EmrCreateCluster(name, clusterName string, cfg EmrClusterConfig, props TaskProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RunJob
	}
	if err := checkPattern("EmrCreateCluster", p, RequestResponse, RunJob); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var fleets []any
	for _, f := range []struct {
		role string
		cfg  FleetConfig
	}{{FleetMaster, cfg.Master}, {FleetCore, cfg.Core}, {FleetTask, cfg.Task}} {
		if len(f.cfg.InstanceTypes) == 0 {
			continue
		}
		fleet, err := InstanceFleet(f.role, f.cfg)
		if err != nil {
			return nil, err
		}
		fleets = append(fleets, fleet)
	}

	params := map[string]any{
		"Name": clusterName,
		"Instances": map[string]any{
			"Ec2SubnetId":                   cfg.Ec2SubnetID,
			"EmrManagedMasterSecurityGroup": cfg.MasterSecurityGroup,
			"EmrManagedSlaveSecurityGroup":  cfg.SlaveSecurityGroup,
			"KeepJobFlowAliveWhenNoSteps":   true,
			"TerminationProtected":          false,
			"InstanceFleets":                fleets,
		},
		"JobFlowRole":       cfg.JobFlowRole,
		"ServiceRole":       cfg.ServiceRole,
		"ReleaseLabel":      cfg.ReleaseLabel,
		"ScaleDownBehavior": "TERMINATE_AT_TASK_COMPLETION",
		"VisibleToAllUsers": true,
	}
	if len(cfg.Applications) > 0 {
		apps := make([]any, 0, len(cfg.Applications))
		for _, a := range cfg.Applications {
			apps = append(apps, map[string]any{"Name": a})
		}
		params["Applications"] = apps
	}
	if cfg.BootstrapURI != "" {
		params["BootstrapActions"] = []any{map[string]any{
			"Name":                  "Install external libraries",
			"ScriptBootstrapAction": map[string]any{"Path": s3URI(cfg.BootstrapBucket, cfg.BootstrapURI)},
		}}
	}
	if cfg.LogURI != "" {
		params["LogUri"] = s3URI(cfg.LogBucket, cfg.LogURI)
	}
	if cfg.StepConcurrencyLevel > 0 {
		params["StepConcurrencyLevel"] = cfg.StepConcurrencyLevel
	}
	if len(cfg.Configurations) > 0 {
		confs := make([]any, 0, len(cfg.Configurations))
		for _, c := range cfg.Configurations {
			m := map[string]any{"Classification": c.Classification}
			if len(c.Properties) > 0 {
				props := make(map[string]any, len(c.Properties))
				for k, v := range c.Properties {
					props[k] = v
				}
				m["Properties"] = props
			}
			confs = append(confs, m)
		}
		params["Configurations"] = confs
	}
	if len(cfg.Tags) > 0 {
		tags := make([]any, 0, len(cfg.Tags))
		for _, k := range sortedKeys(cfg.Tags) {
			tags = append(tags, map[string]any{"Key": k, "Value": cfg.Tags[k]})
		}
		params["Tags"] = tags
	}

	if props.ResultPath == "" {
		props.ResultPath = "$.cluster"
	}
	t := newTask(name, props, integrationArn("elasticmapreduce", "createCluster", p), params)
	t.allow([]string{
		"elasticmapreduce:RunJobFlow",
		"elasticmapreduce:DescribeCluster",
		"elasticmapreduce:TerminateJobFlows",
	}, "*")
	t.allow([]string{"iam:PassRole"}, roleArn(cfg.ServiceRole), roleArn(cfg.JobFlowRole))
	if p == RunJob {
		t.eventsRule("StepFunctionsGetEventForEMRRunJobFlowRule")
	}
	return t, nil
}

// EmrAddStepProps configures EmrAddStep.
type EmrAddStepProps struct {
	TaskProps
	// ClusterID is a literal ID or a Path; it defaults to DefaultClusterID.
	ClusterID any
	// StepName defaults to the state name.
	StepName string
	// ActionOnFailure defaults to CONTINUE.
	ActionOnFailure string
	MainClass       string
	Properties      map[string]string
}

// EmrAddStep runs jar with args as a step of a running cluster.
func EmrAddStep(name, jar string, args []string, props EmrAddStepProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RunJob
	}
	if err := checkPattern("EmrAddStep", p, RequestResponse, RunJob); err != nil {
		return nil, err
	}
	if jar == "" {
		return nil, fmt.Errorf("%s: jar is required", name)
	}
	stepName := props.StepName
	if stepName == "" {
		stepName = name
	}
	action := props.ActionOnFailure
	if action == "" {
		action = "CONTINUE"
	}

	hadoop := map[string]any{"Jar": jar}
	if len(args) > 0 {
		hadoop["Args"] = toAny(args)
	}
	if props.MainClass != "" {
		hadoop["MainClass"] = props.MainClass
	}
	if len(props.Properties) > 0 {
		list := make([]any, 0, len(props.Properties))
		for _, k := range sortedKeys(props.Properties) {
			list = append(list, map[string]any{"Key": k, "Value": props.Properties[k]})
		}
		hadoop["Properties"] = list
	}

	params := map[string]any{
		"ClusterId": clusterID(props.ClusterID),
		"Step": map[string]any{
			"Name":            stepName,
			"ActionOnFailure": action,
			"HadoopJarStep":   hadoop,
		},
	}
	t := newTask(name, props.TaskProps, integrationArn("elasticmapreduce", "addStep", p), params)
	t.allow([]string{
		"elasticmapreduce:AddJobFlowSteps",
		"elasticmapreduce:DescribeStep",
		"elasticmapreduce:CancelSteps",
	}, regionalArn("elasticmapreduce", "cluster/*"))
	if p == RunJob {
		t.eventsRule("StepFunctionsGetEventForEMRAddJobFlowStepsRule")
	}
	return t, nil
}

// EmrTerminateCluster shuts down cluster id, a literal ID or a Path
// defaulting to DefaultClusterID.
func EmrTerminateCluster(name string, id any, props TaskProps) (*Task, error) {
	p := props.IntegrationPattern
	if p == "" {
		p = RunJob
	}
	if err := checkPattern("EmrTerminateCluster", p, RequestResponse, RunJob); err != nil {
		return nil, err
	}
	params := map[string]any{"ClusterId": clusterID(id)}
	t := newTask(name, props, integrationArn("elasticmapreduce", "terminateCluster", p), params)
	t.allow([]string{"elasticmapreduce:DescribeCluster", "elasticmapreduce:TerminateJobFlows"},
		regionalArn("elasticmapreduce", "cluster/*"))
	if p == RunJob {
		t.eventsRule("StepFunctionsGetEventForEMRTerminateJobFlowsRule")
	}
	return t, nil
}

func clusterID(id any) any {
	if id == nil || id == "" {
		return DefaultClusterID
	}
	return id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
