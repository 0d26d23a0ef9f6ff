package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/supportmesh/core"
)

// TurnRunner executes one turn and streams its events.
type TurnRunner interface {
	Run(ctx context.Context, sc *core.SupportContext, text string) (string, <-chan core.Event, <-chan error, error)
}

// Console reads utterances from in and writes rendered events to out.
type Console struct {
	in       *bufio.Reader
	out      io.Writer
	renderer *Renderer
}

// New creates a console with the default theme.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:       bufio.NewReader(in),
		out:      out,
		renderer: NewRenderer(NewStyles(DefaultTheme)),
	}
}

// ToBool parses the yes/no answers accepted by the prompts.
func ToBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "y", "yes", "true", "t":
		return true
	default:
		return false
	}
}

// ProfilePrompts selects which session fields are asked for interactively.
type ProfilePrompts struct {
	Name    bool
	Premium bool
	Account bool
}

// CollectProfile prompts for the selected session fields and merges the
// answers into init. Blank answers leave the field unset.
func (c *Console) CollectProfile(init core.SupportFields, prompts ProfilePrompts) (core.SupportFields, error) {
	f := init

	if prompts.Name {
		v, err := c.ask("Enter your name (or leave blank): ")
		if err != nil {
			return f, err
		}
		if v != "" {
			f.Name = core.StringPtr(v)
		}
	}

	if prompts.Premium {
		v, err := c.ask("Are you a premium user? [y/N]: ")
		if err != nil {
			return f, err
		}
		f.IsPremiumUser = ToBool(v)
	}

	if prompts.Account {
		v, err := c.ask("Account ID (optional): ")
		if err != nil {
			return f, err
		}
		if v != "" {
			f.AccountID = core.StringPtr(v)
		}
	}

	return f, nil
}

// Welcome prints the banner.
func (c *Console) Welcome() {
	fmt.Fprint(c.out, c.renderer.Banner())
}

// Loop runs turns until exit, quit, end of input or cancellation of ctx.
// Empty lines are skipped. A turn already in flight is not interrupted.
// The context snapshot is printed after each turn; a failed turn shows a
// generic message and never the withheld draft.
func (c *Console) Loop(ctx context.Context, r TurnRunner, sc *core.SupportContext) error {
	fmt.Fprint(c.out, "\nContext saved: "+sc.Snapshot().String()+"\n\n")
	fmt.Fprint(c.out, c.renderer.Examples())

	for {
		if ctx.Err() != nil {
			fmt.Fprintln(c.out, "\nGoodbye.")
			return nil
		}

		line, err := c.ask("You: ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out, "\nGoodbye.")
				return nil
			}
			return err
		}

		// interrupted while waiting for input
		if ctx.Err() != nil {
			fmt.Fprintln(c.out, "\nGoodbye.")
			return nil
		}

		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(c.out, "Goodbye.")
			return nil
		}

		if err := c.turn(ctx, r, sc, line); err != nil {
			return err
		}
	}
}

func (c *Console) turn(ctx context.Context, r TurnRunner, sc *core.SupportContext, line string) error {
	_, events, errs, err := r.Run(ctx, sc, line)
	if err != nil {
		return err
	}

	for ev := range events {
		fmt.Fprint(c.out, c.renderer.Event(ev))
	}

	// turn errors were already rendered through the turn-failed event
	for range errs {
	}

	fmt.Fprint(c.out, c.renderer.Snapshot(sc.Snapshot()))

	return nil
}

// ask prints prompt and reads one trimmed line. A final line without newline
// is returned; io.EOF is only reported when nothing was read.
func (c *Console) ask(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)

	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}

	return strings.TrimSpace(line), nil
}
