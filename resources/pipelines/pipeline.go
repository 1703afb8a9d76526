// Package pipelines declares a self-mutating CodePipeline that builds a
// repository, updates itself and deploys stages of stacks to target
// accounts through the bootstrap deploy roles.
package pipelines

import (
	"errors"
	"fmt"
	"sort"

	"github.com/apex/log"

	"github.com/lex00/cdkutils-go/intrinsics"
	"github.com/lex00/cdkutils-go/resources/iam"
	"github.com/lex00/cdkutils-go/stack"
)

// ErrMissingSource is returned when the synth step has no input source.
var ErrMissingSource = errors.New("synth step has no input source")

type ActionTypeID struct {
	Category string
	Owner    string
	Provider string
	Version  string
}

type Artifact struct {
	Name string
}

// Action is one action of a pipeline stage.
type Action struct {
	Name            string
	ActionTypeId    ActionTypeID
	Configuration   map[string]any
	InputArtifacts  []Artifact
	OutputArtifacts []Artifact
	RoleArn         any
	Region          string
	RunOrder        int
}

// StageDeclaration is one stage of the pipeline.
type StageDeclaration struct {
	Name    string
	Actions []Action
}

type EncryptionKey struct {
	Id   any
	Type string
}

type ArtifactStore struct {
	Type          string
	Location      any
	EncryptionKey *EncryptionKey
}

// Pipeline is an AWS::CodePipeline::Pipeline.
type Pipeline struct {
	stack.Construct          `json:"-"`
	Name                     string
	RoleArn                  any
	ArtifactStore            ArtifactStore
	Stages                   []StageDeclaration
	RestartExecutionOnUpdate bool

	synth        *BuildStep
	selfMutation bool
	mutateStep   *BuildStep
	role         *iam.Role
	bucket       *ArtifactBucket
	key          *Key
	stages       []*Stage
	projects     map[*BuildStep]*Project
}

func (*Pipeline) ResourceType() string { return "AWS::CodePipeline::Pipeline" }

// Role returns the pipeline's service role.
func (p *Pipeline) Role() *iam.Role { return p.role }

// AppStages returns the application stages in deployment order.
func (p *Pipeline) AppStages() []*Stage { return append([]*Stage(nil), p.stages...) }

// Project returns the CodeBuild project running step, once synthesized.
func (p *Pipeline) Project(step *BuildStep) (*Project, bool) {
	pr, ok := p.projects[step]
	return pr, ok
}

// Key is an AWS::KMS::Key encrypting pipeline artifacts.
type Key struct {
	stack.Construct   `json:"-"`
	Description       string
	EnableKeyRotation bool
	KeyPolicy         *intrinsics.PolicyDocument
}

func (*Key) ResourceType() string { return "AWS::KMS::Key" }

type sseDefault struct {
	SSEAlgorithm   string
	KMSMasterKeyID any
}

type sseRule struct {
	ServerSideEncryptionByDefault sseDefault
}

type BucketEncryption struct {
	ServerSideEncryptionConfiguration []sseRule
}

type PublicAccessBlock struct {
	BlockPublicAcls       bool
	BlockPublicPolicy     bool
	IgnorePublicAcls      bool
	RestrictPublicBuckets bool
}

// ArtifactBucket is the AWS::S3::Bucket holding pipeline artifacts.
type ArtifactBucket struct {
	stack.Construct                `json:"-"`
	BucketEncryption               *BucketEncryption
	PublicAccessBlockConfiguration PublicAccessBlock
}

func (*ArtifactBucket) ResourceType() string { return "AWS::S3::Bucket" }

type ProjectSource struct {
	Type      string
	BuildSpec string
}

type ProjectArtifacts struct {
	Type string
}

type ProjectEnvironment struct {
	Type           string
	ComputeType    string
	Image          string
	PrivilegedMode bool
}

// Project is an AWS::CodeBuild::Project running one build step.
type Project struct {
	stack.Construct `json:"-"`
	Description     string
	ServiceRole     any
	Source          ProjectSource
	Artifacts       ProjectArtifacts
	Environment     ProjectEnvironment
	EncryptionKey   any
}

func (*Project) ResourceType() string { return "AWS::CodeBuild::Project" }

// PipelineProps configures GetCodePipeline. Both flags default to true.
type PipelineProps struct {
	CrossAccountKeys *bool
	SelfMutation     *bool
}

func flag(v *bool) bool { return v == nil || *v }

// GetCodePipeline declares pipeline repo under "profile-<repo>", sourced
// from synth's input and built by synth.
func GetCodePipeline(st *stack.Stack, repo string, synth *BuildStep, props PipelineProps) (*Pipeline, error) {
	if synth == nil || synth.Input == nil {
		return nil, ErrMissingSource
	}
	p := &Pipeline{
		Name:                     repo,
		RestartExecutionOnUpdate: true,
		synth:                    synth,
		selfMutation:             flag(props.SelfMutation),
		projects:                 make(map[*BuildStep]*Project),
	}
	if err := st.Add("profile-"+repo, p); err != nil {
		return nil, err
	}

	p.bucket = &ArtifactBucket{PublicAccessBlockConfiguration: PublicAccessBlock{true, true, true, true}}
	if err := st.AddChild(p, "ArtifactsBucket", p.bucket); err != nil {
		return nil, err
	}
	p.bucket.ApplyRemovalPolicy(stack.RemovalRetain)
	p.ArtifactStore = ArtifactStore{Type: "S3", Location: p.bucket.Ref()}

	if flag(props.CrossAccountKeys) {
		p.key = &Key{
			Description:       "Artifacts key for pipeline " + repo,
			EnableKeyRotation: true,
			KeyPolicy: intrinsics.NewPolicyDocument(&intrinsics.PolicyStatement{
				Effect:    intrinsics.Allow,
				Principal: intrinsics.AWSPrincipal{intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":iam::", st.Account(), ":root")},
				Action:    []string{"kms:*"},
				Resource:  []any{"*"},
			}),
		}
		if err := st.AddChild(p, "ArtifactsBucketEncryptionKey", p.key); err != nil {
			return nil, err
		}
		p.key.ApplyRemovalPolicy(stack.RemovalDestroy)
		p.bucket.BucketEncryption = &BucketEncryption{ServerSideEncryptionConfiguration: []sseRule{
			{ServerSideEncryptionByDefault: sseDefault{SSEAlgorithm: "aws:kms", KMSMasterKeyID: p.key.GetAtt("Arn")}},
		}}
		p.ArtifactStore.EncryptionKey = &EncryptionKey{Id: p.key.GetAtt("Arn"), Type: "KMS"}
	}

	role, err := iam.NewRole(st, p.ID()+"-Role", iam.RoleProps{
		AssumedBy:  intrinsics.ServicePrincipal{"codepipeline.amazonaws.com"},
		Statements: p.artifactStatements(),
	})
	if err != nil {
		return nil, err
	}
	p.role = role
	p.RoleArn = role.Arn()

	log.WithField("pipeline", repo).WithField("source", synth.Input.RepositoryID()).Debug("pipeline declared")
	return p, nil
}

func (p *Pipeline) artifactStatements() []*intrinsics.PolicyStatement {
	s := []*intrinsics.PolicyStatement{
		iam.PolicyStatement([]string{"s3:GetObject*", "s3:GetBucket*", "s3:List*", "s3:DeleteObject*", "s3:PutObject*", "s3:Abort*"},
			p.bucket.GetAtt("Arn"), intrinsics.Concat(p.bucket.GetAtt("Arn"), "/*")),
	}
	if p.key != nil {
		s = append(s, iam.PolicyStatement([]string{"kms:Decrypt", "kms:DescribeKey", "kms:Encrypt", "kms:ReEncrypt*", "kms:GenerateDataKey*"},
			p.key.GetAtt("Arn")))
	}
	return s
}

// Account is a deployment target of a stage.
type Account struct {
	Name   string
	ID     string
	Region string
	// Approve runs before the stage's own pre steps.
	Approve []Step
}

// Stage is an application stage: stacks deployed together to one
// environment.
type Stage struct {
	Name   string
	Env    stack.Environment
	Stacks []*stack.Stack
	Pre    []Step
	Post   []Step
}

// AddPre appends steps run before the stacks deploy.
func (s *Stage) AddPre(steps ...Step) { s.Pre = append(s.Pre, steps...) }

// AddPost appends steps run after the stacks deploy.
func (s *Stage) AddPost(steps ...Step) { s.Post = append(s.Post, steps...) }

// StageFunc builds the stacks of a stage for its environment.
type StageFunc func(name string, env stack.Environment) ([]*stack.Stack, error)

// AddPipelineStage builds stage for account and appends it to p, gated by
// the account's approval steps and the given pre and post steps.
func AddPipelineStage(p *Pipeline, stage StageFunc, account Account, pre, post []Step) (*Stage, error) {
	env := stack.Environment{Account: account.ID, Region: account.Region}
	stacks, err := stage(account.Name, env)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", account.Name, err)
	}
	if len(stacks) == 0 {
		return nil, fmt.Errorf("stage %s has no stacks", account.Name)
	}
	for _, existing := range p.stages {
		if existing.Name == account.Name {
			return nil, fmt.Errorf("%w: stage %q", stack.ErrDuplicateID, account.Name)
		}
	}
	s := &Stage{Name: account.Name, Env: env, Stacks: stacks}
	s.AddPre(account.Approve...)
	s.AddPre(pre...)
	s.AddPost(post...)
	p.stages = append(p.stages, s)
	return s, nil
}

// Prepare renders the pipeline stages and declares a CodeBuild project per
// build step.
func (p *Pipeline) Prepare() error {
	var stages []StageDeclaration

	sources := []*Source{p.synth.Input}
	for _, dir := range sortedKeys(p.synth.AdditionalInputs) {
		sources = append(sources, p.synth.AdditionalInputs[dir])
	}
	for _, st := range p.stages {
		for _, step := range append(append([]Step{}, st.Pre...), st.Post...) {
			if b, ok := step.(*BuildStep); ok && b.Input != nil {
				sources = append(sources, b.Input)
			}
		}
	}
	source := StageDeclaration{Name: "Source"}
	seen := make(map[string]bool)
	for _, src := range sources {
		if seen[src.ArtifactName()] {
			continue
		}
		seen[src.ArtifactName()] = true
		source.Actions = append(source.Actions, Action{
			Name:         src.Owner + "_" + src.Repo,
			ActionTypeId: ActionTypeID{"Source", "AWS", "CodeStarSourceConnection", "1"},
			Configuration: map[string]any{
				"ConnectionArn":    src.ConnectionArn,
				"FullRepositoryId": src.RepositoryID(),
				"BranchName":       src.Branch,
			},
			OutputArtifacts: []Artifact{{Name: src.ArtifactName()}},
			RunOrder:        1,
		})
		if err := p.allow([]string{"codestar-connections:UseConnection"}, src.ConnectionArn); err != nil {
			return err
		}
	}
	stages = append(stages, source)

	build, err := p.buildAction(p.synth, 1)
	if err != nil {
		return err
	}
	stages = append(stages, StageDeclaration{Name: "Build", Actions: []Action{build}})

	if p.selfMutation {
		mutate, err := p.buildAction(p.selfMutationStep(), 1)
		if err != nil {
			return err
		}
		stages = append(stages, StageDeclaration{Name: "UpdatePipeline", Actions: []Action{mutate}})
	}

	for _, s := range p.stages {
		decl, err := p.appStage(s)
		if err != nil {
			return err
		}
		stages = append(stages, decl)
	}
	p.Stages = stages
	return nil
}

func (p *Pipeline) selfMutationStep() *BuildStep {
	if p.mutateStep != nil {
		return p.mutateStep
	}
	p.mutateStep = &BuildStep{
		Name: "SelfMutate",
		Commands: []string{
			"npm install -g aws-cdk@2",
			fmt.Sprintf("cdk -a . deploy %s --require-approval=never --verbose", p.Stack().Name),
		},
		RolePolicyStatements: []*intrinsics.PolicyStatement{
			iam.PolicyStatement([]string{"sts:AssumeRole"},
				intrinsics.Concat("arn:*:iam::", p.Stack().Account(), ":role/*")),
			iam.PolicyStatement([]string{"cloudformation:DescribeStacks"}),
			iam.PolicyStatement([]string{"s3:ListBucket"}),
		},
		BuildImage: "aws/codebuild/standard:7.0",
	}
	return p.mutateStep
}

// allow adds a statement to the pipeline role.
func (p *Pipeline) allow(actions []string, resources ...any) error {
	_, err := p.role.AddToPolicy(iam.PolicyStatement(actions, resources...))
	return err
}

func (p *Pipeline) appStage(s *Stage) (StageDeclaration, error) {
	decl := StageDeclaration{Name: s.Name}
	order := 1
	for _, step := range s.Pre {
		a, err := p.stepAction(step, order)
		if err != nil {
			return decl, err
		}
		decl.Actions = append(decl.Actions, a)
		order++
	}

	account, region := any(s.Env.Account), s.Env.Region
	if s.Env.Account == "" {
		account = p.Stack().Account()
	}
	regionPart := any(region)
	if region == "" {
		regionPart = p.Stack().Region()
	}
	deployRole := intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":iam::", account,
		":role/cdk-"+stack.Qualifier+"-deploy-role-", account, "-", regionPart)
	execRole := intrinsics.Concat("arn:", intrinsics.AWS_PARTITION, ":iam::", account,
		":role/cdk-"+stack.Qualifier+"-cfn-exec-role-", account, "-", regionPart)
	if err := p.allow([]string{"sts:AssumeRole"}, deployRole); err != nil {
		return decl, err
	}

	synthOut := p.synth.OutputArtifactName()
	for _, st := range s.Stacks {
		stackName := s.Name + "-" + st.Name
		config := map[string]any{
			"StackName":     stackName,
			"ChangeSetName": "PipelineChange",
		}
		prepare := map[string]any{
			"ActionMode":   "CHANGE_SET_REPLACE",
			"TemplatePath": fmt.Sprintf("%s::assembly-%s/%s.template.json", synthOut, s.Name, stackName),
			"RoleArn":      execRole,
			"Capabilities": "CAPABILITY_NAMED_IAM,CAPABILITY_AUTO_EXPAND",
		}
		for k, v := range config {
			prepare[k] = v
		}
		execute := map[string]any{"ActionMode": "CHANGE_SET_EXECUTE"}
		for k, v := range config {
			execute[k] = v
		}
		deployType := ActionTypeID{"Deploy", "AWS", "CloudFormation", "1"}
		decl.Actions = append(decl.Actions,
			Action{
				Name:           st.Name + ".Prepare",
				ActionTypeId:   deployType,
				Configuration:  prepare,
				InputArtifacts: []Artifact{{Name: synthOut}},
				RoleArn:        deployRole,
				Region:         region,
				RunOrder:       order,
			},
			Action{
				Name:          st.Name + ".Deploy",
				ActionTypeId:  deployType,
				Configuration: execute,
				RoleArn:       deployRole,
				Region:        region,
				RunOrder:      order + 1,
			})
	}
	order += 2

	for _, step := range s.Post {
		a, err := p.stepAction(step, order)
		if err != nil {
			return decl, err
		}
		decl.Actions = append(decl.Actions, a)
		order++
	}
	return decl, nil
}

func (p *Pipeline) stepAction(step Step, order int) (Action, error) {
	switch s := step.(type) {
	case *ManualApproval:
		a := Action{
			Name:         s.Name,
			ActionTypeId: ActionTypeID{"Approval", "AWS", "Manual", "1"},
			RunOrder:     order,
		}
		if s.Comment != "" {
			a.Configuration = map[string]any{"CustomData": s.Comment}
		}
		return a, nil
	case *BuildStep:
		return p.buildAction(s, order)
	default:
		return Action{}, fmt.Errorf("unsupported pipeline step %T", step)
	}
}

func (p *Pipeline) buildAction(step *BuildStep, order int) (Action, error) {
	project, err := p.project(step)
	if err != nil {
		return Action{}, err
	}
	inputs := []Artifact{{Name: p.synth.OutputArtifactName()}}
	if step.Input != nil {
		inputs = []Artifact{{Name: step.Input.ArtifactName()}}
	}
	for _, dir := range sortedKeys(step.AdditionalInputs) {
		inputs = append(inputs, Artifact{Name: step.AdditionalInputs[dir].ArtifactName()})
	}
	a := Action{
		Name:           step.Name,
		ActionTypeId:   ActionTypeID{"Build", "AWS", "CodeBuild", "1"},
		Configuration:  map[string]any{"ProjectName": project.Ref()},
		InputArtifacts: inputs,
		RunOrder:       order,
	}
	if step.PrimaryOutputDirectory != "" {
		a.OutputArtifacts = []Artifact{{Name: step.OutputArtifactName()}}
	}
	if err := p.allow([]string{"codebuild:BatchGetBuilds", "codebuild:StartBuild", "codebuild:StopBuild"}, project.GetAtt("Arn")); err != nil {
		return Action{}, err
	}
	return a, nil
}

// project returns the CodeBuild project of step, declaring it on first use.
func (p *Pipeline) project(step *BuildStep) (*Project, error) {
	if pr, ok := p.projects[step]; ok {
		return pr, nil
	}
	spec, err := step.BuildSpec()
	if err != nil {
		return nil, err
	}
	st := p.Stack()
	pr := &Project{
		Description: fmt.Sprintf("Pipeline step %s/%s", p.Name, step.Name),
		Source:      ProjectSource{Type: "CODEPIPELINE", BuildSpec: spec},
		Artifacts:   ProjectArtifacts{Type: "CODEPIPELINE"},
		Environment: ProjectEnvironment{
			Type:        "LINUX_CONTAINER",
			ComputeType: "BUILD_GENERAL1_SMALL",
			Image:       step.BuildImage,
		},
	}
	if err := st.AddChild(p, step.Name, pr); err != nil {
		return nil, err
	}
	if p.key != nil {
		pr.EncryptionKey = p.key.GetAtt("Arn")
	}

	statements := append(p.artifactStatements(),
		iam.PolicyStatement([]string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
			st.FormatArn(stack.ArnFormat{Service: "logs", Resource: "log-group:/aws/codebuild/*"})),
	)
	statements = append(statements, step.RolePolicyStatements...)
	role, err := iam.NewRole(st, pr.ID()+"-Role", iam.RoleProps{
		AssumedBy:  intrinsics.ServicePrincipal{"codebuild.amazonaws.com"},
		Statements: statements,
	})
	if err != nil {
		return nil, err
	}
	pr.ServiceRole = role.Arn()
	p.projects[step] = pr
	return pr, nil
}

func sortedKeys(m map[string]*Source) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
