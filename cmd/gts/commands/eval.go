package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-template-script/pkg/value"
)

// evalCmd represents the eval command
var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate an expression or run a script",
	Long: `Evaluates a single expression against the variables given with --var and
prints the result. With --exec the argument is run as a script and the
text it appends to tR is printed.

Examples:
  gts eval "1 + 2 * 3"
  gts eval --var name=Ada "name.toUpperCase()"
  gts eval --exec "for (let i = 0; i < 3; i++) tR += i"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, _ := cmd.Flags().GetStringArray("var")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		script, _ := cmd.Flags().GetBool("exec")
		return runEval(cmd, strings.Join(args, " "), vars, jsonOutput, script)
	},
}

func runEval(cmd *cobra.Command, src string, vars []string, jsonOutput, script bool) error {
	a := current
	e, save := a.newEngine(a.hostOptions("-", "", "", nil)...)
	defer save()

	bound, err := parseVars(e.Evaluator(), vars)
	if err != nil {
		return err
	}
	store := value.NewStore()
	for name, v := range bound {
		store.Set(name, v)
	}

	out := cmd.OutOrStdout()
	if script {
		output, err := e.Execute(cmd.Context(), src, store)
		if err != nil {
			return err
		}
		fmt.Fprint(out, output)
		return nil
	}

	v := e.Evaluate(cmd.Context(), src, store)
	if jsonOutput {
		fmt.Fprintln(out, value.ToJSON(v, "  "))
	} else {
		fmt.Fprintln(out, v.Literal())
	}
	return nil
}

func init() {
	evalCmd.Flags().StringArray("var", nil, "Bind a variable (name=value), repeatable")
	evalCmd.Flags().BoolP("json", "j", false, "Print the result as JSON")
	evalCmd.Flags().BoolP("exec", "e", false, "Run the argument as a script")
}
