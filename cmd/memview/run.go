package main

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run inspector commands from a file, string or stdin",
	Long: `Run inspector commands, one per line, and print their output.

Commands are read from the -c flag, the named file or stdin, in that order.
Blank lines and lines starting with # are skipped. The first failing line
stops the run.

Examples:
  memview run -c 'call add 2 3'
  memview run script.mv
  echo 'call strlen "hello"' | memview run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Commands to run")
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	code, _ := cmd.Flags().GetString("code")

	var src io.Reader
	switch {
	case code != "":
		src = strings.NewReader(code)
	case len(args) > 0:
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	default:
		src = cmd.InOrStdin()
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close(ctx)) }()

	return s.sh.Run(ctx, src)
}
