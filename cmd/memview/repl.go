package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/memview/internal/inspect"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive inspector with persistent memory",
	Long: `Start an interactive inspector session. Allocations, strings and
trampolines live until the session ends.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Command completion (Tab)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.memview_history)")
	rootCmd.AddCommand(replCmd)
}

func historyFile(flag string) string {
	switch {
	case flag != "":
		return flag
	case app.cfg.History != "":
		return app.cfg.History
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memview_history")
}

func completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range inspect.Commands() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func runRepl(cmd *cobra.Command, _ []string) (err error) {
	history, _ := cmd.Flags().GetString("history")

	ctx := cmd.Context()
	s, err := openSession(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close(ctx)) }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "memview> ",
		HistoryFile:       historyFile(history),
		HistoryLimit:      1000,
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "memview repl (type 'help' for commands, 'exit' to quit)")
	replLoop(ctx, rl, s.sh, cmd.ErrOrStderr())
	return nil
}

type lineReader interface {
	Readline() (string, error)
}

// replLoop executes lines until exit or end of input. Failing commands are
// reported and the loop goes on.
func replLoop(ctx context.Context, lr lineReader, sh *inspect.Shell, stderr io.Writer) {
	for {
		line, err := lr.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != io.EOF {
				fmt.Fprintf(stderr, "Error reading input: %v\n", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			return
		}
		if err := sh.Exec(ctx, line); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
}
