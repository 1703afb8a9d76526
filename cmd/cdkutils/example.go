package main

import (
	"github.com/lex00/cdkutils-go/resources/events"
	"github.com/lex00/cdkutils-go/resources/stepfunctions"
	"github.com/lex00/cdkutils-go/stack"
)

// lifecycleOptions parameterizes the bundled EMR lifecycle stack.
type lifecycleOptions struct {
	account       string
	region        string
	subnet        string
	masterSG      string
	slaveSG       string
	release       string
	scriptsBucket string
	script        string
	scheduleHour  string
	instanceType  string
	spotCapacity  int
}

// lifecycleStack declares a state machine that creates an EMR cluster, runs
// one Spark step and terminates the cluster, started nightly by a rule.
func lifecycleStack(o lifecycleOptions) (*stack.Stack, error) {
	st := stack.New("emr-lifecycle", stack.Environment{Account: o.account, Region: o.region})
	st.Description = "EMR cluster lifecycle"

	cfg := stepfunctions.EmrClusterConfig{
		Ec2SubnetID:         o.subnet,
		MasterSecurityGroup: o.masterSG,
		SlaveSecurityGroup:  o.slaveSG,
		JobFlowRole:         "EMR_EC2_DefaultRole",
		ServiceRole:         "EMR_DefaultRole",
		ReleaseLabel:        o.release,
		Applications:        []string{"Spark"},
		Master:              stepfunctions.FleetConfig{InstanceTypes: []string{o.instanceType}, TargetOnDemandCapacity: 1},
		Core:                stepfunctions.FleetConfig{InstanceTypes: []string{o.instanceType}, TargetOnDemandCapacity: 1},
		LogURI:              "s3://" + o.scriptsBucket + "/emr-logs/",
	}
	if o.spotCapacity > 0 {
		cfg.Task = stepfunctions.FleetConfig{InstanceTypes: []string{o.instanceType}, TargetSpotCapacity: o.spotCapacity}
	}
	create, err := stepfunctions.EmrClusterStep("Create Cluster", "emr-lifecycle", cfg)
	if err != nil {
		return nil, err
	}
	run, err := stepfunctions.AddEmrStep("command-runner.jar",
		stepfunctions.SparkSubmitArgs(o.scriptsBucket, o.script), "Run Spark Job", "")
	if err != nil {
		return nil, err
	}
	terminate, err := stepfunctions.TerminateEmrStep("Terminate Cluster", "")
	if err != nil {
		return nil, err
	}

	sm, err := stepfunctions.DeployStateMachine(st, "emr-lifecycle",
		stepfunctions.Sequence(create, run, terminate), stepfunctions.DeployProps{})
	if err != nil {
		return nil, err
	}
	if _, err := events.AddEventRule(st, "emr-lifecycle-nightly", sm, events.RuleProps{Hour: o.scheduleHour}); err != nil {
		return nil, err
	}
	if err := st.AddOutput("StateMachineArn", sm.Arn(), "EMR lifecycle state machine", ""); err != nil {
		return nil, err
	}
	return st, nil
}
