package notifier

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts a high-urgency alert as a Slack Block Kit message.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier constructs a SlackNotifier posting to channel using token.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, alert Alert) error {
	header := slack.NewTextBlockObject(slack.PlainTextType, fmt.Sprintf("High urgency ticket %s", alert.TicketID), false, false)
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Category:*\n%s", alert.Category), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Urgency:*\n%.2f", alert.Urgency), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Assigned:*\n%s", orNone(alert.AssignedAgent)), false, false),
	}
	if alert.MasterIncident != "" {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Master Incident:*\n%s", alert.MasterIncident), false, false))
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(header, nil, nil),
		slack.NewSectionBlock(nil, fields, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, alert.Subject, false, false), nil, nil),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionBlocks(blocks...))
	return err
}

func orNone(s string) string {
	if s == "" {
		return "unassigned"
	}
	return s
}
