package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	baseURL string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "chattester",
		Short:         "Exercise a running EchoSoul backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("ECHOSOUL_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "url", defaultURL, "backend base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "request timeout")

	cmd.AddCommand(newSendCmd(opts), newMessagesCmd(opts), newChatsCmd(opts), newRecommendCmd(opts))
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	var chatID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one chat turn",
		Long: `Send one chat turn and print the reply with its detected emotion.

Examples:
  chattester send "I am so angry right now"
  chattester send --chat 3f2c... "still upset"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"message": strings.Join(args, " ")}
			if chatID != "" {
				body["chat_id"] = chatID
			}
			return opts.call(cmd, http.MethodPost, "/api/chat", body)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "continue an existing conversation")
	return cmd
}

func newMessagesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <chat-id>",
		Short: "Print the full history of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/chat/"+args[0]+"/messages", nil)
		},
	}
}

func newChatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/chats", nil)
		},
	}
}

func newRecommendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <chat-id>",
		Short: "Fetch end-of-conversation recommendations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/recommendations/"+args[0], nil)
		},
	}
}

// call sends the request and pretty-prints the JSON reply. Non-2xx statuses
// are returned as errors after the body is printed.
func (o *options) call(cmd *cobra.Command, method, path string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(o.baseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	out := cmd.OutOrStdout()
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Fprintln(out, pretty.String())
	} else {
		fmt.Fprintln(out, string(raw))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
