package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"oneclick/pkg/client"
	"oneclick/pkg/config"
	"oneclick/pkg/ui/chat"

	"github.com/spf13/cobra"
)

const plainIdleTimeout = time.Second

var (
	chatURL   string
	chatPlain bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive session against a running server",
	Long:  "Connects to the WebSocket session endpoint and starts the terminal chat, or a line-oriented client with --plain.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		target := strings.TrimSpace(chatURL)
		if target == "" {
			cfg, err := config.LoadConfig()
			if err != nil {
				fmt.Printf("failed to load config: %v\n", err)
				return
			}
			target = defaultChatURL(cfg)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session := client.New(client.Config{URL: target}, nil)
		if err := session.Connect(ctx); err != nil {
			fmt.Printf("failed to connect to %s: %v\n", target, err)
			return
		}
		defer session.Close()

		if chatPlain {
			if err := chat.RunPlain(ctx, session, os.Stdin, os.Stdout, plainIdleTimeout); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
			return
		}

		if err := chat.RunInteractive(ctx, session, chat.RuntimeInfo{URL: target}); err != nil {
			fmt.Printf("failed to start interactive chat: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatURL, "url", "u", "", "session endpoint (default from config)")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "line-oriented client without the terminal UI")
}

// defaultChatURL points at the locally configured listener.
func defaultChatURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return "ws://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)) + cfg.Server.WSPath
}
