// Package publish delivers rendered messages to a chat channel.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"calpost/internal/format"
	appLog "calpost/internal/log"
)

const timeout = 10 * time.Second

// Publisher sends one rendered message.
type Publisher interface {
	Publish(ctx context.Context, msg *format.Message) error
}

// SlackPublisher posts messages with chat.postMessage.
type SlackPublisher struct {
	client  *slack.Client
	channel string
}

// NewSlack creates a Slack publisher. apiURL overrides the Web API base and
// may be empty.
func NewSlack(token, channel, apiURL string) (*SlackPublisher, error) {
	if token == "" {
		return nil, errors.New("slack token is required")
	}
	if channel == "" {
		return nil, errors.New("slack channel is required")
	}

	opts := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: timeout}),
	}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}

	return &SlackPublisher{
		client:  slack.New(token, opts...),
		channel: channel,
	}, nil
}

// Publish posts msg. A nil message is a no-op.
func (p *SlackPublisher) Publish(ctx context.Context, msg *format.Message) error {
	if msg == nil {
		return nil
	}

	channel, ts, err := p.client.PostMessageContext(ctx, p.channel,
		slack.MsgOptionBlocks(toSlackBlocks(msg.Blocks)...),
		slack.MsgOptionText(msg.Fallback, false),
	)
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", p.channel, err)
	}

	appLog.Info("slack: message posted", "channel", channel, "ts", ts, "blocks", len(msg.Blocks))
	return nil
}

func toSlackBlocks(blocks []format.Block) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case format.BlockDivider:
			out = append(out, slack.NewDividerBlock())
		default:
			text := slack.NewTextBlockObject(slack.MarkdownType, b.Text, false, false)
			out = append(out, slack.NewSectionBlock(text, nil, nil))
		}
	}
	return out
}

// DryRun writes messages to W instead of posting them.
type DryRun struct {
	W io.Writer

	mu sync.Mutex
}

// NewDryRun returns a publisher printing to w.
func NewDryRun(w io.Writer) *DryRun {
	return &DryRun{W: w}
}

func (d *DryRun) Publish(_ context.Context, msg *format.Message) error {
	if msg == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range msg.Blocks {
		var err error
		switch b.Type {
		case format.BlockDivider:
			_, err = fmt.Fprintln(d.W, "----")
		default:
			_, err = fmt.Fprintln(d.W, b.Text)
		}
		if err != nil {
			return fmt.Errorf("writing dry-run output: %w", err)
		}
	}
	return nil
}
