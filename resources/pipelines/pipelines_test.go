package pipelines

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lex00/cdkutils-go/stack"
)

const connection = "arn:aws:codestar-connections:eu-central-1:123456789012:connection/abc"

func TestManualApprovalStep(t *testing.T) {
	assert.Equal(t, "Approve prod", ManualApprovalStep("prod").StepName())
}

func TestGitHubConnection(t *testing.T) {
	src := GitHubConnection("data-platform", "main", connection, "")
	assert.Equal(t, "vnrag/data-platform", src.RepositoryID())
	assert.Equal(t, "vnrag_data_platform_Source", src.ArtifactName())

	other := GitHubConnection("infra", "dev", connection, "acme")
	assert.Equal(t, "acme/infra", other.RepositoryID())
}

func TestCodeBuildStep_BuildSpec(t *testing.T) {
	step := CodeBuildStep("", GitHubConnection("app", "main", connection, ""), []string{"make synth"}, CodeBuildProps{
		AdditionalInputs: map[string]*Source{"shared": GitHubConnection("shared", "main", connection, "")},
	})
	assert.Equal(t, "Synth", step.Name)
	assert.Equal(t, "Synth_Output", step.OutputArtifactName())

	spec, err := step.BuildSpec()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(spec), &parsed))
	assert.Equal(t, "0.2", parsed["version"])
	phases := parsed["phases"].(map[string]any)
	assert.Equal(t, []any{"make synth"}, phases["build"].(map[string]any)["commands"])
	install := phases["install"].(map[string]any)["commands"].([]any)
	assert.Len(t, install, 2)
	assert.Contains(t, install[1], "CODEBUILD_SRC_DIR_vnrag_shared_Source")
	assert.Equal(t, "cdk.out", parsed["artifacts"].(map[string]any)["base-directory"])
}

func stageOf(names ...string) StageFunc {
	return func(stage string, env stack.Environment) ([]*stack.Stack, error) {
		var stacks []*stack.Stack
		for _, n := range names {
			stacks = append(stacks, stack.New(n, env))
		}
		return stacks, nil
	}
}

func TestGetCodePipeline(t *testing.T) {
	st := stack.New("pipeline", stack.Environment{Account: "111111111111", Region: "eu-central-1"})
	synth := CodeBuildStep("", GitHubConnection("data-platform", "main", connection, ""), []string{"make synth"}, CodeBuildProps{})

	p, err := GetCodePipeline(st, "data-platform", synth, PipelineProps{})
	require.NoError(t, err)
	assert.Equal(t, "profile-data-platform", p.ID())

	s, err := AddPipelineStage(p, stageOf("etl", "api"), Account{
		Name:    "prod",
		ID:      "222222222222",
		Region:  "eu-west-1",
		Approve: []Step{ManualApprovalStep("prod")},
	}, nil, []Step{CodeBuildStep("Smoke", nil, []string{"make smoke"}, CodeBuildProps{})})
	require.NoError(t, err)
	assert.Equal(t, "222222222222", s.Stacks[0].Env.Account)

	tmpl, err := st.Synth()
	require.NoError(t, err)
	_, err = st.Synth()
	require.NoError(t, err)

	names := make([]string, len(p.Stages))
	for i, stage := range p.Stages {
		names[i] = stage.Name
	}
	assert.Equal(t, []string{"Source", "Build", "UpdatePipeline", "prod"}, names)

	prod := p.Stages[3].Actions
	require.Len(t, prod, 6)
	assert.Equal(t, "Approve prod", prod[0].Name)
	assert.Equal(t, "etl.Prepare", prod[1].Name)
	assert.Equal(t, 2, prod[1].RunOrder)
	assert.Equal(t, "Synth_Output::assembly-prod/prod-etl.template.json", prod[1].Configuration["TemplatePath"])
	assert.Equal(t, "eu-west-1", prod[1].Region)
	assert.Equal(t, "Smoke", prod[5].Name)
	assert.Equal(t, 4, prod[5].RunOrder)

	var projects, keys int
	for _, def := range tmpl.Resources {
		switch def.Type {
		case "AWS::CodeBuild::Project":
			projects++
		case "AWS::KMS::Key":
			keys++
		}
	}
	assert.Equal(t, 3, projects)
	assert.Equal(t, 1, keys)

	_, err = AddPipelineStage(p, stageOf("etl"), Account{Name: "prod"}, nil, nil)
	assert.ErrorIs(t, err, stack.ErrDuplicateID)
}

func TestGetCodePipeline_NoMutationNoKeys(t *testing.T) {
	st := stack.New("pipeline", stack.Environment{})
	off := false
	synth := CodeBuildStep("Build", GitHubConnection("app", "main", connection, ""), []string{"make"}, CodeBuildProps{})

	p, err := GetCodePipeline(st, "app", synth, PipelineProps{CrossAccountKeys: &off, SelfMutation: &off})
	require.NoError(t, err)
	_, err = st.Synth()
	require.NoError(t, err)

	assert.Len(t, p.Stages, 2)
	assert.Nil(t, p.ArtifactStore.EncryptionKey)
}

func TestGetCodePipeline_Errors(t *testing.T) {
	st := stack.New("pipeline", stack.Environment{})
	_, err := GetCodePipeline(st, "app", CodeBuildStep("", nil, nil, CodeBuildProps{}), PipelineProps{})
	assert.ErrorIs(t, err, ErrMissingSource)

	synth := CodeBuildStep("", GitHubConnection("app", "main", connection, ""), nil, CodeBuildProps{})
	p, err := GetCodePipeline(st, "app", synth, PipelineProps{})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = AddPipelineStage(p, func(string, stack.Environment) ([]*stack.Stack, error) { return nil, boom }, Account{Name: "dev"}, nil, nil)
	assert.ErrorIs(t, err, boom)
	_, err = AddPipelineStage(p, stageOf(), Account{Name: "dev"}, nil, nil)
	assert.Error(t, err)
}
