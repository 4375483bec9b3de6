package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bantai/bantai/policydoc"
)

var validatePolicyPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy document without evaluating it",
	Long: `Loads a policy document and runs structural validation only: schema
field types, rule kinds, and the arguments each rule kind requires. It
does not evaluate any input.

Example:
  bantai validate --policy policy.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validatePolicyPath, "policy", "", "path to the policy YAML document (required)")
	_ = validateCmd.MarkFlagRequired("policy")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, _ []string) error {
	doc, err := policydoc.Load(validatePolicyPath)
	if err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s: valid (%d field(s), %d rule(s))\n", validatePolicyPath, len(doc.Fields), len(doc.Rules))
	return nil
}
