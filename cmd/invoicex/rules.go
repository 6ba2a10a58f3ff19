package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/invoice-trust/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective rules file",
	Long: `Rules loads the rules file given by --rules (or the embedded default),
validates it and prints it. With --check only the validation result is printed.`,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().Bool("check", false, "validate only")
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, _ []string) error {
	rs, err := rules.Load(viper.GetString("rules"))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if check, _ := cmd.Flags().GetBool("check"); check {
		fmt.Fprintf(out, "%s: ok (%d fields, strategies %v)\n", rs.Source, len(rs.Schema.Fields), rs.Strategies)
		return nil
	}
	_, err = out.Write(rs.Raw)
	return err
}
