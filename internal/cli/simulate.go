package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/replyflow/internal/presentation/tui"
	"github.com/aretw0/replyflow/pkg/adapters/file"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/preview"
)

// SimulateOptions configures an interactive preview.
type SimulateOptions struct {
	File    string
	Persona domain.Persona
	In      io.Reader
	Out     io.Writer
	// Render formats replies. Nil prints them as they are.
	Render tui.Renderer
}

const simulateHelp = "Commands: /reset, /timeline, /transcript, /quit"

// Simulate loads a template version from a file, deploys it as an inactive
// instance and chats with it as the persona until the input ends, /quit is
// typed or ctx is cancelled.
func Simulate(ctx context.Context, rt *Runtime, opts SimulateOptions) error {
	render := opts.Render
	if render == nil {
		render = tui.Plain
	}
	out := opts.Out

	v, err := file.LoadVersionFile(opts.File)
	if err != nil {
		return err
	}
	inst, err := rt.Deploy(ctx, v, false)
	if err != nil {
		return err
	}

	persona := opts.Persona
	p, err := rt.Engine.StartPreviewSession(ctx, preview.StartRequest{Instance: inst, Persona: &persona})
	if err != nil {
		return err
	}
	printSystemMessage(out, "Previewing %s (version %d) as %s.", v.TemplateID, v.Version, p.Conversation.ContactName)
	printSystemMessage(out, simulateHelp)

	lines := readLines(ctx, opts.In)
	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			printSystemMessage(out, "Interrupted.")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			printSystemMessage(out, simulateHelp)
		case "/reset":
			if err := rt.Engine.ResetPreviewSession(ctx, p.Session.ID); err != nil {
				return err
			}
			p, err = rt.Engine.StartPreviewSession(ctx, preview.StartRequest{Instance: inst, Persona: &persona, Reset: true})
			if err != nil {
				return err
			}
			printSystemMessage(out, "Preview reset. New session %s.", p.Session.ID)
		case "/timeline":
			events, err := rt.Engine.PreviewTimeline(ctx, p.Session.ID)
			if err != nil {
				return err
			}
			printTimeline(out, events)
		case "/transcript":
			msgs, err := rt.Engine.PreviewTranscript(ctx, p.Session.ID)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s\n", m.From, m.Text)
			}
		default:
			res, err := rt.Engine.SendPreviewMessage(ctx, p.Session.ID, line)
			if err != nil {
				if domain.IsInputError(err) {
					printSystemMessage(out, "Rejected: %v", err)
					continue
				}
				return err
			}
			if err := printTurn(out, render, res); err != nil {
				return err
			}
		}
	}
}

// readLines feeds the lines of r into a channel that closes at EOF.
// The reader goroutine ends with the input, not with ctx.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func printTurn(w io.Writer, render tui.Renderer, res *domain.TurnResult) error {
	for _, m := range res.Messages {
		text, err := render(m.Text)
		if err != nil {
			return fmt.Errorf("render reply: %w", err)
		}
		fmt.Fprintf(w, "%s: %s\n", m.From, strings.TrimSpace(text))
		for _, b := range m.Buttons {
			fmt.Fprintf(w, "    [%s]\n", b.Title)
		}
	}
	for _, tc := range res.ToolCalls {
		printSystemMessage(w, "Tool requested: %s %v", tc.Name, tc.Arguments)
	}
	switch {
	case res.Degraded:
		printSystemMessage(w, "The model call failed; the deferral reply was sent.")
	case res.Skipped:
		printSystemMessage(w, "Automation is %s; nothing ran.", res.Session.Status)
	}
	if res.Escalation != nil {
		printSystemMessage(w, "Handed off to %q: %s", res.Escalation.Topic, res.Escalation.Reason)
	}
	if res.Terminal && res.Session.Status == domain.StatusCompleted {
		printSystemMessage(w, "Session completed. Type /reset to start over.")
	}
	return nil
}

func printTimeline(w io.Writer, events []domain.Event) {
	if len(events) == 0 {
		printSystemMessage(w, "No events yet.")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%s %-16s", e.At.Format("15:04:05"), e.Kind)
		if e.NodeID != "" {
			line += " node=" + e.NodeID
		}
		if e.NextNodeID != "" {
			line += " next=" + e.NextNodeID
		}
		if e.Status != "" {
			line += " status=" + string(e.Status)
		}
		if e.Message != "" {
			line += fmt.Sprintf(" %q", e.Message)
		}
		fmt.Fprintln(w, line)
	}
}
