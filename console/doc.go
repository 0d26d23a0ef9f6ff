// Package console is the interactive terminal front end: it collects the
// session profile once, then reads one utterance per line, runs it through a
// TurnRunner and renders the event stream with lipgloss styles.
package console
