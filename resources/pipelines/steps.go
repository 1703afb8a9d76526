package pipelines

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lex00/cdkutils-go/intrinsics"
)

// DefaultOwner is the GitHub organization repositories belong to unless
// another owner is given.
const DefaultOwner = "vnrag"

// Step is a unit of work in a pipeline stage.
type Step interface {
	StepName() string
}

// ManualApproval pauses the pipeline until someone approves.
type ManualApproval struct {
	Name    string
	Comment string
}

func (m *ManualApproval) StepName() string { return m.Name }

// ManualApprovalStep returns the approval step "Approve <name>".
func ManualApprovalStep(name string) *ManualApproval {
	return &ManualApproval{Name: "Approve " + name}
}

// Source is a repository connected through CodeStar Connections.
type Source struct {
	Owner         string
	Repo          string
	Branch        string
	ConnectionArn string
}

// RepositoryID returns "<owner>/<repo>".
func (s *Source) RepositoryID() string { return s.Owner + "/" + s.Repo }

var nonArtifactChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ArtifactName names the source's output artifact.
func (s *Source) ArtifactName() string {
	return nonArtifactChars.ReplaceAllString(s.Owner+"_"+s.Repo+"_Source", "_")
}

// GitHubConnection returns the source for branch of repo. owner defaults to
// DefaultOwner.
func GitHubConnection(repo, branch, connectionArn, owner string) *Source {
	if owner == "" {
		owner = DefaultOwner
	}
	return &Source{Owner: owner, Repo: repo, Branch: branch, ConnectionArn: connectionArn}
}

// BuildStep runs shell commands in a CodeBuild project.
type BuildStep struct {
	Name  string
	Input *Source
	// AdditionalInputs maps a checkout directory to a source, e.g. git
	// submodules.
	AdditionalInputs     map[string]*Source
	Commands             []string
	RolePolicyStatements []*intrinsics.PolicyStatement
	// PrimaryOutputDirectory is exported as the step's output artifact.
	PrimaryOutputDirectory string
	BuildImage             string
}

func (b *BuildStep) StepName() string { return b.Name }

// OutputArtifactName names the step's output artifact.
func (b *BuildStep) OutputArtifactName() string {
	return nonArtifactChars.ReplaceAllString(b.Name+"_Output", "_")
}

// CodeBuildProps configures CodeBuildStep.
type CodeBuildProps struct {
	AdditionalInputs     map[string]*Source
	RolePolicyStatements []*intrinsics.PolicyStatement
}

// CodeBuildStep returns a build step named name, default "Synth", that
// checks out input and runs commands. The cdk.out directory is its output.
func CodeBuildStep(name string, input *Source, commands []string, props CodeBuildProps) *BuildStep {
	if name == "" {
		name = "Synth"
	}
	return &BuildStep{
		Name:                   name,
		Input:                  input,
		AdditionalInputs:       props.AdditionalInputs,
		Commands:               commands,
		RolePolicyStatements:   props.RolePolicyStatements,
		PrimaryOutputDirectory: "cdk.out",
		BuildImage:             "aws/codebuild/standard:7.0",
	}
}

type buildSpec struct {
	Version   string                `yaml:"version"`
	Phases    map[string]buildPhase `yaml:"phases"`
	Artifacts *buildArtifacts       `yaml:"artifacts,omitempty"`
}

type buildPhase struct {
	Commands []string `yaml:"commands"`
}

type buildArtifacts struct {
	BaseDirectory string `yaml:"base-directory"`
	Files         string `yaml:"files"`
}

// BuildSpec renders the step's buildspec.yml. Additional inputs are copied
// into place before the commands run.
func (b *BuildStep) BuildSpec() (string, error) {
	var install []string
	dirs := make([]string, 0, len(b.AdditionalInputs))
	for dir := range b.AdditionalInputs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		src := b.AdditionalInputs[dir]
		install = append(install,
			fmt.Sprintf(`[ ! -d "%s" ] || { echo 'additional input directory "%s" already exists'; exit 1; }`, dir, dir),
			fmt.Sprintf(`ln -s -- "$CODEBUILD_SRC_DIR_%s" "%s"`, src.ArtifactName(), dir),
		)
	}

	spec := buildSpec{
		Version: "0.2",
		Phases:  map[string]buildPhase{"build": {Commands: b.Commands}},
	}
	if len(install) > 0 {
		spec.Phases["install"] = buildPhase{Commands: install}
	}
	if b.PrimaryOutputDirectory != "" {
		spec.Artifacts = &buildArtifacts{BaseDirectory: b.PrimaryOutputDirectory, Files: "**/*"}
	}
	data, err := yaml.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("buildspec for %s: %w", b.Name, err)
	}
	return string(data), nil
}
