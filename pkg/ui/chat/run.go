package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"oneclick/pkg/client"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Session is a connected channel: lines go out through Send and server
// lines arrive on Messages, which is closed when the session ends.
type Session interface {
	Send(text string) error
	Messages() <-chan client.Message
}

// RuntimeInfo is shown in the chat header.
type RuntimeInfo struct {
	URL string
}

func RunInteractive(ctx context.Context, session Session, info RuntimeInfo) error {
	program := tea.NewProgram(newModel(session, info), tea.WithContext(ctx), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

// RunPlain is the line-oriented client: every input line is sent and every
// server line is printed. After input ends it keeps printing until the
// server has been quiet for idle, so piped commands see their full reply.
func RunPlain(ctx context.Context, session Session, in io.Reader, out io.Writer, idle time.Duration) error {
	inputDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			if isExitCommand(line) {
				break
			}
			if err := session.Send(line); err != nil {
				inputDone <- fmt.Errorf("send line: %w", err)
				return
			}
		}
		inputDone <- scanner.Err()
	}()

	var quiet <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-inputDone:
			if err != nil {
				return err
			}
			quiet = time.After(idle)
		case <-quiet:
			return nil
		case line, ok := <-session.Messages():
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintln(out, line.Text); err != nil {
				return err
			}
			if quiet != nil {
				quiet = time.After(idle)
			}
		}
	}
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("📡 Session closed. Thanks for using AIGE OneClick")
}
