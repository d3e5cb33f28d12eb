package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/output"
)

var scanArgs string
var scanNamed string
var scanFormat string
var scanExpect string

var scanCmd = &cobra.Command{
	Use:   "scan <script.star> <function>",
	Short: "Execute a script and scan one of the table functions it registered on the default connection.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (outErr error) {
		var parser fastjson.Parser
		positional, err := parsePositional(&parser, scanArgs)
		if err != nil {
			return err
		}
		named, err := parseNamed(&parser, scanNamed)
		if err != nil {
			return err
		}

		s, err := newSession(cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil && outErr == nil {
				outErr = fmt.Errorf("couldn't close session: %w", err)
			}
		}()

		if _, err := s.interp.ExecFile(cmd.Context(), args[0], nil); err != nil {
			return fmt.Errorf("couldn't run %s: %w", args[0], err)
		}
		var conn *engine.Connection
		if err := s.interp.Lock().With(func() error {
			var err error
			conn, err = s.state.GetDefaultConnection()
			return err
		}); err != nil {
			return err
		}
		result, err := conn.TableFunction(cmd.Context(), args[1], positional, named)
		if err != nil {
			return fmt.Errorf("couldn't scan %s: %w", args[1], err)
		}

		var buf bytes.Buffer
		var out io.Writer = os.Stdout
		if scanExpect != "" {
			out = &buf
		}
		formatter, err := output.NewFormatter(scanFormat, out)
		if err != nil {
			return err
		}
		if err := output.Print(formatter, result); err != nil {
			return fmt.Errorf("couldn't print result: %w", err)
		}

		if scanExpect != "" {
			return compareWithExpected(scanExpect, buf.String())
		}
		return nil
	},
}

// compareWithExpected fails with a unified diff when the output differs from the expected file.
func compareWithExpected(path, got string) error {
	expected, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("couldn't read expected output: %w", err)
	}
	if string(expected) == got {
		return nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expected)),
		B:        difflib.SplitLines(got),
		FromFile: path,
		ToFile:   "output",
		Context:  2,
	})
	if err != nil {
		return fmt.Errorf("couldn't diff output: %w", err)
	}
	return fmt.Errorf("output differs from %s:\n%s", path, diff)
}

func init() {
	scanCmd.Flags().StringVar(&scanArgs, "args", "", "Positional arguments as a JSON array.")
	scanCmd.Flags().StringVar(&scanNamed, "named", "", "Named arguments as a JSON object.")
	scanCmd.Flags().StringVar(&scanFormat, "format", "table", "Output format: table, csv or json.")
	scanCmd.Flags().StringVar(&scanExpect, "expect", "", "Compare the output with the given file instead of printing it.")
}
