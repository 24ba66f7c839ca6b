package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"dsa-agent/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	server := flag.String("server", "http://localhost:5000", "Backend base URL")
	timeout := flag.Duration("timeout", 3*time.Minute, "Per-question timeout")
	flag.Parse()

	client := tui.NewChatClient(*server, *timeout)
	p := tea.NewProgram(tui.New(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat client error: %v\n", err)
		os.Exit(1)
	}
}
