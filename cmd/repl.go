package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (outErr error) {
		s, err := newSession(cfg, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil && outErr == nil {
				outErr = fmt.Errorf("couldn't close session: %w", err)
			}
		}()

		r := newRepl(cmd.Context(), s, os.Stdout)
		fmt.Printf("octostar %s session, type exit to quit\n", s.state.Environment())
		prompt.New(
			r.execute,
			r.complete,
			prompt.OptionPrefix(">>> "),
			prompt.OptionLivePrefix(r.prefix),
			prompt.OptionTitle("octostar"),
			prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
				return breakline && strings.TrimSpace(in) == "exit"
			}),
		).Run()
		return nil
	},
}

type repl struct {
	ctx     context.Context
	session *session
	out     io.Writer
	env     starlark.StringDict
	pending []string
}

func newRepl(ctx context.Context, s *session, out io.Writer) *repl {
	return &repl{
		ctx:     ctx,
		session: s,
		out:     out,
		env:     starlark.StringDict{},
	}
}

func (r *repl) prefix() (string, bool) {
	if len(r.pending) > 0 {
		return "... ", true
	}
	return ">>> ", false
}

// execute buffers block statements until an empty line, everything else runs immediately.
func (r *repl) execute(line string) {
	if len(r.pending) > 0 {
		if strings.TrimSpace(line) != "" {
			r.pending = append(r.pending, line)
			return
		}
		line = strings.Join(r.pending, "\n")
		r.pending = nil
	} else if strings.HasSuffix(strings.TrimSpace(line), ":") {
		r.pending = append(r.pending, line)
		return
	}
	if strings.TrimSpace(line) == "" || strings.TrimSpace(line) == "exit" {
		return
	}

	value, err := r.session.interp.ExecChunk(r.ctx, line, r.env)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %s\n", err)
		return
	}
	if value != nil && value != starlark.None {
		fmt.Fprintln(r.out, value.String())
	}
}

func (r *repl) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}
	var names []string
	for name := range r.session.interp.Predeclared() {
		names = append(names, name)
	}
	for name := range r.env {
		names = append(names, name)
	}
	sort.Strings(names)

	suggestions := make([]prompt.Suggest, 0, len(names))
	for _, name := range names {
		suggestions = append(suggestions, prompt.Suggest{Text: name})
	}
	return prompt.FilterHasPrefix(suggestions, word, false)
}
