package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeefy/pybot/internal/codecheck"
	"github.com/jeefy/pybot/internal/style"
)

var errCheckFailed = errors.New("code check failed")

func (a *app) checkCmd() *cobra.Command {
	var (
		styleName string
		message   bool
	)
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Check and run a Python snippet",
		Long: `Check a Python file (or stdin when no file or "-" is given): syntax, style
notes, then a sandboxed run when the syntax is valid. Nothing is recorded.

With --message the input is treated as a chat message and code is only checked
when the message looks like it contains some.

Examples:
  pybot check script.py
  echo 'print(1/0)' | pybot check
  pybot check --message notes.md`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s := style.Parse(styleName)
			checker := a.checker()

			var report codecheck.Report
			if message {
				r, ok, err := checker.CheckMessage(ctx, input, s)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), a.theme.hintStyle().Render("no Python code found in message"))
					return nil
				}
				report = r
			} else {
				report, err = checker.Inspect(ctx, input, s)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), report.Render())
			switch {
			case !report.Syntax.Valid:
				fmt.Fprintln(cmd.ErrOrStderr(), a.theme.errorStyle().Render("✗ syntax check failed"))
				return errCheckFailed
			case report.Exec != nil && !report.Exec.Success && !report.Exec.Skipped:
				fmt.Fprintln(cmd.ErrOrStderr(), a.theme.errorStyle().Render("✗ execution failed"))
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&styleName, "style", "s", string(style.Balanced), "report style: balanced, detailed, concise, beginner")
	cmd.Flags().BoolVar(&message, "message", false, "treat input as a chat message and extract the code")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}
