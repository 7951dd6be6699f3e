package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/openmined/sftpsync/internal/config"
	"github.com/openmined/sftpsync/internal/sync"
)

type confirmKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

var defaultConfirmKeys = confirmKeyMap{
	Confirm: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "yes"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("n", "N", "esc", "enter"),
		key.WithHelp("n", "no"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "interrupt"),
	),
}

// confirmModel is a single yes/no question. Enter answers no.
type confirmModel struct {
	question string
	keys     confirmKeyMap

	answer      bool
	done        bool
	interrupted bool
}

func newConfirmModel(question string) confirmModel {
	return confirmModel{question: question, keys: defaultConfirmKeys}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		m.interrupted = true
	case key.Matches(keyMsg, m.keys.Confirm):
		m.answer = true
	case key.Matches(keyMsg, m.keys.Cancel):
		m.answer = false
	default:
		return m, nil
	}
	m.done = true
	return m, tea.Quit
}

func (m confirmModel) View() string {
	var b strings.Builder
	b.WriteString(cyan.Bold(true).Render("?"))
	b.WriteString(" ")
	b.WriteString(m.question)
	b.WriteString(" ")

	switch {
	case m.interrupted:
		b.WriteString(red.Render("interrupted"))
		b.WriteString("\n")
	case m.done && m.answer:
		b.WriteString(green.Render("yes"))
		b.WriteString("\n")
	case m.done:
		b.WriteString(red.Render("no"))
		b.WriteString("\n")
	default:
		b.WriteString(gray.Render("["))
		b.WriteString(lightGray.Render(m.keys.Confirm.Help().Key))
		b.WriteString(gray.Render("/"))
		b.WriteString(lightGray.Bold(true).Render(strings.ToUpper(m.keys.Cancel.Help().Key)))
		b.WriteString(gray.Render("]"))
	}
	return b.String()
}

// teaConfirmer asks on the terminal with a bubbletea program per question.
type teaConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (c teaConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p := tea.NewProgram(newConfirmModel(question),
		tea.WithContext(ctx),
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
	)
	final, err := p.Run()
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}

	m := final.(confirmModel)
	if m.interrupted {
		return false, context.Canceled
	}
	return m.answer, nil
}

// lineConfirmer reads y/n answers line by line, for piped input.
type lineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newLineConfirmer(in io.Reader, out io.Writer) *lineConfirmer {
	return &lineConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *lineConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(c.out, "%s [y/N] ", question)

	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		lines <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return false, ctx.Err()
	case r := <-lines:
		if r.err != nil && r.err != io.EOF {
			return false, fmt.Errorf("read answer: %w", r.err)
		}
		if r.err == io.EOF {
			fmt.Fprintln(c.out)
		}
		return parseAnswer(r.line), nil
	}
}

func parseAnswer(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

// newConfirmer picks the confirmation policy: --yes/--no answer without
// asking, a terminal gets the interactive prompt, anything else reads lines.
func newConfirmer(assume string, in *os.File, out *os.File) sync.Confirmer {
	switch assume {
	case config.AssumeYes:
		return sync.AutoConfirm(true)
	case config.AssumeNo:
		return sync.AutoConfirm(false)
	}
	if isatty.IsTerminal(in.Fd()) && isatty.IsTerminal(out.Fd()) {
		return teaConfirmer{in: in, out: out}
	}
	return newLineConfirmer(in, out)
}
