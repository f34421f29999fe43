package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/objex-dev/objex/internal/client"
)

// runClient implements the create, join, send and listen subcommands.
func runClient(cmd string, args []string) error {
	fs := pflag.NewFlagSet("objex "+cmd, pflag.ContinueOnError)
	addr := fs.String("server", "http://localhost:8080", "objex server URL")
	channelID := fs.StringP("channel", "c", "", "channel id")
	subscriberID := fs.StringP("subscriber", "s", "", "subscriber id (send, listen)")
	question := fs.String("question", "", "challenge question (create)")
	answer := fs.String("answer", "", "challenge answer (create, join)")
	once := fs.Bool("once", false, "exit after the first message (listen)")
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if *channelID == "" {
		return fmt.Errorf("--channel is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*addr)

	switch cmd {
	case "create":
		id, err := c.CreateChannel(ctx, *channelID, *question, *answer)
		if err != nil {
			return err
		}
		fmt.Println(id)

	case "join":
		if *answer == "" {
			q, err := c.Question(ctx, *channelID)
			if err != nil {
				return err
			}
			fmt.Println(q)
			return nil
		}
		id, err := c.Join(ctx, *channelID, *answer)
		if err != nil {
			return err
		}
		fmt.Println(id)

	case "send":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		n, err := c.Publish(ctx, *channelID, *subscriberID, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "delivered to %d subscriber(s)\n", n)

	case "listen":
		errStop := errors.New("stop")
		err := c.Stream(ctx, *channelID, *subscriberID, func(data []byte) error {
			os.Stdout.Write(data)
			fmt.Println()
			if *once {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			return err
		}
	}
	return nil
}
