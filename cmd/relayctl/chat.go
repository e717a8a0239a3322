package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/chatrelay/internal/client"
	"github.com/danmuck/chatrelay/internal/logging"
	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		name       string
		attempts   int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a relay and chat from the terminal",
		Long: `Join a relay and chat from the terminal.

Lines typed on stdin are sent as public messages; "@name text" sends a private
message. Type /quit or close stdin to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultChatConfig()
			if configPath != "" {
				loaded, err := loadChatConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("name") {
				cfg.Name = name
			}
			if cmd.Flags().Changed("attempts") {
				cfg.Client.MaxConnectAttempts = attempts
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Chat config file (TOML)")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Relay host")
	cmd.Flags().IntVarP(&port, "port", "p", 5000, "Relay port")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().IntVar(&attempts, "attempts", 1, "Connect attempts; 0 retries until interrupted")

	return cmd
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out io.Writer) error {
	logging.ConfigureRuntime()
	c, err := client.Connect(ctx, cfg.Host, cfg.Port, cfg.Name, cfg.Client)
	if err != nil {
		var connErr *client.ConnectError
		if errors.As(err, &connErr) && connErr.Reason != "" {
			return errors.New(connErr.Reason)
		}
		return err
	}
	defer c.Close()
	fmt.Fprintf(out, "connected to %s as %s\n", c.Addr(), c.Name())

	recvDone := make(chan error, 1)
	go func() {
		for {
			line, err := c.Receive()
			if err != nil {
				recvDone <- err
				return
			}
			fmt.Fprintln(out, line)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvDone:
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "disconnected")
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				return err
			}
		}
	}
}
