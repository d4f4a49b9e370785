package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// LineReader is the input side of a REPL.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// REPL runs a Session interactively.
type REPL struct {
	session *Session
	input   LineReader
	out     io.Writer

	reply *color.Color
	fail  *color.Color
}

// NewREPL reads from the terminal with a "> " prompt.
func NewREPL(session *Session, out io.Writer) (*REPL, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return newREPL(session, rl, out), nil
}

func newREPL(session *Session, input LineReader, out io.Writer) *REPL {
	return &REPL{
		session: session,
		input:   input,
		out:     out,
		reply:   color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
	}
}

// Run loops until EOF, an interrupt, "exit" or ctx is done. Turn errors are printed and the loop
// continues.
func (r *REPL) Run(ctx context.Context) error {
	defer r.input.Close()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := r.input.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		text, err := r.session.Turn(ctx, line)
		if err != nil {
			r.fail.Fprintf(r.out, "Chat error: %v\n", err)
			continue
		}
		r.reply.Fprintln(r.out, text)
	}
}
