// Command cdkutils synthesizes, lints and inspects CloudFormation templates
// and state machines, and wraps a few run-time AWS calls.
//
// Usage:
//
//	cdkutils synth                     Synthesize the EMR lifecycle stack
//	cdkutils lint template.json        Lint a template
//	cdkutils diff old.json new.json    Compare two templates
//	cdkutils asl validate flow.json    Validate a state machine definition
//	cdkutils ssm get /data/bucket      Read a parameter
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/cdkutils-go/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cdkutils",
		Short: "CloudFormation and Step Functions helpers",
		Long: `cdkutils works with templates synthesized by the cdkutils packages.

Synthesize the bundled EMR lifecycle stack:

    cdkutils synth --account 123456789012 --region eu-central-1

Set CDKUTILS_LOG=debug for diagnostics.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.InitLogger()
		},
	}

	root.AddCommand(
		newSynthCmd(),
		newLintCmd(),
		newDiffCmd(),
		newGraphCmd(),
		newOptimizeCmd(),
		newASLCmd(),
		newSSMCmd(),
		newSTSCmd(),
		newGlueCmd(),
		newQuickSightCmd(),
		newPublishCmd(),
		newVersionCmd(),
	)
	return root
}
