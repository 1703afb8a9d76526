package sfnjson

import (
	"errors"
	"fmt"
)

// ErrMissingConfig is returned when a required cluster setting is absent.
var ErrMissingConfig = errors.New("missing cluster configuration")

// Tag is an EMR cluster tag.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Application is an EMR application such as Spark.
type Application struct {
	Name string `json:"Name"`
}

// InstanceTypeConfig is one entry of an instance fleet.
type InstanceTypeConfig struct {
	InstanceType     string `json:"InstanceType"`
	BidPrice         string `json:"BidPrice,omitempty"`
	WeightedCapacity *int   `json:"WeightedCapacity,omitempty"`
}

// ComputeLimits bounds EMR managed scaling.
type ComputeLimits struct {
	MaximumCoreCapacityUnits     int    `json:"MaximumCoreCapacityUnits"`
	MaximumOnDemandCapacityUnits int    `json:"MaximumOnDemandCapacityUnits"`
	MinimumCapacityUnits         int    `json:"MinimumCapacityUnits"`
	UnitType                     string `json:"UnitType"`
	MaximumCapacityUnits         int    `json:"MaximumCapacityUnits"`
}

// ScalingPolicy is an EMR managed scaling policy.
type ScalingPolicy struct {
	ComputeLimits ComputeLimits `json:"ComputeLimits"`
}

// ClusterConfig holds cluster settings. Zero values take the defaults;
// EC2Subnet and both managed security groups are required.
type ClusterConfig struct {
	Tags            []Tag
	Apps            []Application
	Instance        string
	SpotCapacity    *int
	CoreOnDemand    *int
	TaskOnDemand    int
	FleetConfig     []InstanceTypeConfig
	ScalingPolicy   *ScalingPolicy
	StepConcurrency *int
	EMRVersion      string

	EC2Subnet            string
	EMRSlaveSecurity     string
	EMRMasterSecurity    string
	EMRServiceAccess     string
	MasterInstanceConfig []InstanceTypeConfig
	CoreInstanceConfig   []InstanceTypeConfig

	// JSONPath variants read the value from the execution input.
	CoreOnDemandPath        string
	InstanceTypeConfigsPath string
	TaskSpotPath            string
	TaskOnDemandPath        string
}

// ClusterInput sets the cluster name, log URI and bootstrap script literally.
type ClusterInput struct {
	ClusterName     string
	LogURI          string
	BootstrapScript string
}

// ClusterStartOptions configures ClusterStart.
type ClusterStartOptions struct {
	Next string
	// Input nil reads the name, log URI and script from
	// $.emr_cluster_params.
	Input  *ClusterInput
	Config ClusterConfig
	// SkipX2Large drops the m5.2xlarge entry from the default fleet.
	SkipX2Large bool
	// DisableScaling omits the managed scaling policy.
	DisableScaling bool
	// WeightedCapacity of the default m5.xlarge fleet entry, default 2.
	WeightedCapacity *int
	Catch            []State
}

// ClusterStart creates an EMR cluster and waits until it is running.
func ClusterStart(opts ClusterStartOptions) (State, error) {
	cfg := opts.Config
	switch {
	case cfg.EC2Subnet == "":
		return nil, fmt.Errorf("%w: ec2 subnet", ErrMissingConfig)
	case cfg.EMRSlaveSecurity == "":
		return nil, fmt.Errorf("%w: emr slave security group", ErrMissingConfig)
	case cfg.EMRMasterSecurity == "":
		return nil, fmt.Errorf("%w: emr master security group", ErrMissingConfig)
	}

	weighted := 2
	if opts.WeightedCapacity != nil {
		weighted = *opts.WeightedCapacity
	}
	tags := cfg.Tags
	if tags == nil {
		tags = []Tag{{Key: "owner", Value: "data"}, {Key: "name", Value: "cdk-step-function"}}
	}
	apps := cfg.Apps
	if apps == nil {
		apps = []Application{{Name: "Hadoop"}, {Name: "Spark"}}
	}
	instance := cfg.Instance
	if instance == "" {
		instance = "m5.xlarge"
	}
	spotCapacity := 4
	if cfg.SpotCapacity != nil {
		spotCapacity = *cfg.SpotCapacity
	}
	coreOnDemand := 5
	if cfg.CoreOnDemand != nil {
		coreOnDemand = *cfg.CoreOnDemand
	}
	fleet := cfg.FleetConfig
	if fleet == nil {
		fleet = []InstanceTypeConfig{{InstanceType: "m5.xlarge", BidPrice: "0.08", WeightedCapacity: &weighted}}
		if !opts.SkipX2Large {
			x2Weight := 4
			fleet = append(fleet, InstanceTypeConfig{InstanceType: "m5.2xlarge", BidPrice: "0.2", WeightedCapacity: &x2Weight})
		}
	}
	scaling := cfg.ScalingPolicy
	if scaling == nil {
		scaling = &ScalingPolicy{ComputeLimits: ComputeLimits{
			MaximumCoreCapacityUnits:     4,
			MaximumOnDemandCapacityUnits: 5,
			MinimumCapacityUnits:         6,
			UnitType:                     "InstanceFleetUnits",
			MaximumCapacityUnits:         spotCapacity,
		}}
	}
	stepConcurrency := 10
	if cfg.StepConcurrency != nil {
		stepConcurrency = *cfg.StepConcurrency
	}
	release := cfg.EMRVersion
	if release == "" {
		release = "emr-6.2.0"
	}
	master := cfg.MasterInstanceConfig
	if master == nil {
		master = []InstanceTypeConfig{{InstanceType: instance}}
	}
	core := cfg.CoreInstanceConfig
	if core == nil {
		core = []InstanceTypeConfig{{InstanceType: instance}}
	}

	coreFleet := State{
		"InstanceFleetType":   "CORE",
		"Name":                "CORE_NODE",
		"InstanceTypeConfigs": core,
	}
	setValueOrPath(coreFleet, "TargetOnDemandCapacity", coreOnDemand, cfg.CoreOnDemandPath)

	taskFleet := State{
		"InstanceFleetType": "TASK",
		"Name":              "TASK_NODES",
		"LaunchSpecifications": State{
			"SpotSpecification": State{
				"TimeoutDurationMinutes": 180,
				"TimeoutAction":          "TERMINATE_CLUSTER",
			},
		},
	}
	setValueOrPath(taskFleet, "TargetSpotCapacity", spotCapacity, cfg.TaskSpotPath)
	setValueOrPath(taskFleet, "TargetOnDemandCapacity", cfg.TaskOnDemand, cfg.TaskOnDemandPath)
	setValueOrPath(taskFleet, "InstanceTypeConfigs", fleet, cfg.InstanceTypeConfigsPath)

	instances := State{
		"InstanceFleets": []State{
			{
				"InstanceFleetType":      "MASTER",
				"Name":                   "MASTER_NODE",
				"TargetOnDemandCapacity": 1,
				"InstanceTypeConfigs":    master,
			},
			coreFleet,
			taskFleet,
		},
		"KeepJobFlowAliveWhenNoSteps":   true,
		"TerminationProtected":          false,
		"Ec2SubnetId":                   cfg.EC2Subnet,
		"EmrManagedSlaveSecurityGroup":  cfg.EMRSlaveSecurity,
		"EmrManagedMasterSecurityGroup": cfg.EMRMasterSecurity,
	}
	if cfg.EMRServiceAccess != "" {
		instances["ServiceAccessSecurityGroup"] = cfg.EMRServiceAccess
	}

	script := State{}
	params := State{
		"ReleaseLabel":         release,
		"StepConcurrencyLevel": stepConcurrency,
		"Tags":                 tags,
		"Applications":         apps,
		"Instances":            instances,
		"BootstrapActions": []State{{
			"Name":                  "Install external libraries",
			"ScriptBootstrapAction": script,
		}},
		"JobFlowRole":       "EMR_EC2_DefaultRole",
		"ServiceRole":       "EMR_DefaultRole",
		"EbsRootVolumeSize": 10,
		"ScaleDownBehavior": "TERMINATE_AT_TASK_COMPLETION",
		"VisibleToAllUsers": true,
	}
	if !opts.DisableScaling {
		params["ManagedScalingPolicy"] = scaling
	}

	s := State{
		"Type":       "Task",
		"Resource":   ResourceCreateCluster,
		"Parameters": params,
		"ResultPath": "$.cluster",
	}
	if in := opts.Input; in != nil {
		s["InputPath"] = "$"
		params["Name"] = in.ClusterName
		params["LogUri"] = in.LogURI
		script["Path"] = in.BootstrapScript
	} else {
		s["InputPath"] = "$.emr_cluster_params"
		params["Name.$"] = "$.cluster_name"
		params["LogUri.$"] = "$.log_uri"
		script["Path.$"] = "$.bootstrap_script"
	}
	setTransition(s, opts.Next)
	setCatch(s, opts.Catch)
	return s, nil
}

// setValueOrPath writes key: value, or "key.$": path when path is set.
func setValueOrPath(s State, key string, value any, path string) {
	if path != "" {
		s[key+".$"] = path
		return
	}
	s[key] = value
}

// ClusterTerminate terminates the cluster at clusterIDPath (default
// $.cluster.ClusterId).
func ClusterTerminate(next, clusterIDPath string, catch []State) State {
	if clusterIDPath == "" {
		clusterIDPath = "$.cluster.ClusterId"
	}
	s := State{
		"Type":       "Task",
		"InputPath":  "$",
		"Resource":   ResourceTerminateCluster,
		"Parameters": State{"ClusterId.$": clusterIDPath},
		"ResultPath": "$.cluster_terminate",
	}
	setTransition(s, next)
	setCatch(s, catch)
	return s
}

// JarConfig configures a command-runner step.
type JarConfig struct {
	ArgPath    string // default "$.arg"
	NamePath   string // default ArgPath + "[3]"
	ResultPath string // default "$.result"
	ClusterID  string // default "$.cluster.ClusterId"
	Catch      []State
	// ArgValue and Name are used with the literal variants.
	ArgValue []string
	Name     string // default "JarStep"
}

// JarStepOptions configures JarStep.
type JarStepOptions struct {
	Next   string
	Config JarConfig
	// LiteralArgs sends Config.ArgValue instead of reading ArgPath.
	LiteralArgs bool
	// LiteralName sends Config.Name instead of reading NamePath.
	LiteralName bool
}

// JarStep adds a command-runner.jar step to a running cluster.
func JarStep(opts JarStepOptions) (State, error) {
	cfg := opts.Config
	argPath := cfg.ArgPath
	if argPath == "" {
		argPath = "$.arg"
	}
	namePath := cfg.NamePath
	if namePath == "" {
		namePath = argPath + "[3]"
	}
	resultPath := cfg.ResultPath
	if resultPath == "" {
		resultPath = "$.result"
	}
	clusterID := cfg.ClusterID
	if clusterID == "" {
		clusterID = "$.cluster.ClusterId"
	}

	jar := State{"Jar": "command-runner.jar"}
	if opts.LiteralArgs {
		if cfg.ArgValue == nil {
			return nil, fmt.Errorf("%w: jar step arguments", ErrMissingConfig)
		}
		jar["Args"] = cfg.ArgValue
	} else {
		jar["Args.$"] = argPath
	}

	step := State{
		"ActionOnFailure": "CONTINUE",
		"HadoopJarStep":   jar,
	}
	if opts.LiteralName {
		name := cfg.Name
		if name == "" {
			name = "JarStep"
		}
		step["Name"] = name
	} else {
		step["Name.$"] = namePath
	}

	s := State{
		"Type":     "Task",
		"Resource": ResourceAddStep,
		"Parameters": State{
			"Step":        step,
			"ClusterId.$": clusterID,
		},
		"ResultPath": resultPath,
	}
	setTransition(s, opts.Next)
	setCatch(s, cfg.Catch)
	return s, nil
}
