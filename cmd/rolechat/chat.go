package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/pkg/app"
	"github.com/flemzord/rolechat/pkg/message"
)

const chatHelp = `Commands:
  /help             show this help
  /history          print the stored conversation
  /regen            regenerate the last reply
  /edit <text>      replace your last message and resend it
  /suggest          propose replies
  /summary          summarize the conversation
  /memory           save a memory of the conversation so far
  /persona <text>   set your persona (empty clears it)
  /model <name>     switch model
  /clear            delete the history
  /quit             leave`

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <character>",
		Short: "Talk to a character in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			p := params(cmd)
			p.LogOutput = cmd.ErrOrStderr()
			a, err := app.Build(ctx, p)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			c, err := a.Service.Open(ctx, args[0])
			if err != nil {
				return err
			}
			r := &repl{conv: c, in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.OutOrStdout()}
			return r.run(ctx)
		},
	}
}

type repl struct {
	conv *chat.Conversation
	in   *bufio.Scanner
	out  io.Writer
}

func (r *repl) run(ctx context.Context) error {
	msgs, err := r.conv.Messages(ctx)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		r.print(m)
	}
	fmt.Fprintln(r.out, "(/help for commands)")

	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		quit, err := r.handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(r.out, "error:", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.stream(func(onFragment func(string)) (message.Message, error) {
			return r.conv.Send(ctx, line, onFragment)
		})
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/history":
		msgs, err := r.conv.Messages(ctx)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			r.print(m)
		}
	case "/regen":
		return false, r.stream(func(onFragment func(string)) (message.Message, error) {
			return r.conv.Regenerate(ctx, onFragment)
		})
	case "/edit":
		id, err := r.lastUserMessage(ctx)
		if err != nil {
			return false, err
		}
		return false, r.stream(func(onFragment func(string)) (message.Message, error) {
			return r.conv.Edit(ctx, id, arg, onFragment)
		})
	case "/suggest":
		suggestions, err := r.conv.Suggest(ctx)
		if err != nil {
			return false, err
		}
		if len(suggestions) == 0 {
			fmt.Fprintln(r.out, "(no suggestions)")
		}
		for i, s := range suggestions {
			fmt.Fprintf(r.out, "  %d. %s\n", i+1, s)
		}
	case "/summary":
		summary, err := r.conv.Summarize(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, summary)
	case "/memory":
		mem, err := r.conv.RegenerateMemory(ctx)
		if err != nil {
			return false, err
		}
		r.print(mem)
	case "/persona":
		return false, r.conv.SetPersona(ctx, arg)
	case "/model":
		if arg == "" {
			fmt.Fprintln(r.out, r.conv.Settings().Model)
			return false, nil
		}
		return false, r.conv.SetModel(ctx, arg)
	case "/clear":
		if err := r.conv.Clear(ctx); err != nil {
			return false, err
		}
		msgs, err := r.conv.Messages(ctx)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			r.print(m)
		}
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
	return false, nil
}

// stream prints the reply as it arrives. A failed turn still prints the
// inline error marker the conversation returns.
func (r *repl) stream(run func(func(string)) (message.Message, error)) error {
	name := r.conv.Character().Name
	fmt.Fprintf(r.out, "%s: ", name)
	started := false
	reply, err := run(func(fragment string) {
		started = true
		fmt.Fprint(r.out, fragment)
	})
	switch {
	case errors.Is(err, chat.ErrAbandoned):
		fmt.Fprintln(r.out, "(interrupted)")
		return nil
	case err != nil && started:
		fmt.Fprintf(r.out, "\n%s\n", reply.Text)
	case !started:
		fmt.Fprintln(r.out, reply.Text)
	default:
		fmt.Fprintln(r.out)
	}
	return err
}

func (r *repl) lastUserMessage(ctx context.Context) (string, error) {
	msgs, err := r.conv.Messages(ctx)
	if err != nil {
		return "", err
	}
	last, ok := message.LastOfRole(msgs, message.RoleUser)
	if !ok {
		return "", errors.New("no message to edit")
	}
	return last.ID, nil
}

func (r *repl) print(m message.Message) {
	switch {
	case m.IsMemory:
		fmt.Fprintf(r.out, "[memory %s] %s\n", shortID(m.ID), m.Text)
	case m.Role == message.RoleUser:
		fmt.Fprintf(r.out, "you: %s\n", m.Text)
	default:
		fmt.Fprintf(r.out, "%s: %s\n", r.conv.Character().Name, m.Text)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
