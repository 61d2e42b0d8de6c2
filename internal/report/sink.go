// Package report formats grouping outcomes as chat messages and delivers them.
package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/slack-go/slack"
)

// Sink accepts one pre-formatted message.
type Sink interface {
	Post(ctx context.Context, text string) error
}

// SlackPoster is the subset of the Slack web API used to post messages.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackSink posts messages to one Slack channel.
type SlackSink struct {
	client  SlackPoster
	channel string
}

// NewSlackSink creates a sink that authenticates with a bot token.
func NewSlackSink(token, channel string) *SlackSink {
	return NewSlackSinkWithClient(slack.New(token), channel)
}

// NewSlackSinkWithClient creates a sink around an existing client.
func NewSlackSinkWithClient(client SlackPoster, channel string) *SlackSink {
	return &SlackSink{client: client, channel: channel}
}

// Post sends text to the channel as plain mrkdwn.
func (s *SlackSink) Post(ctx context.Context, text string) error {
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post to slack channel %s: %w", s.channel, err)
	}
	return nil
}

// ConsoleSink writes messages to a writer, separated by blank lines. It backs
// dry runs.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Post(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n\n", text)
	return err
}
