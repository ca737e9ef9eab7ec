package notifier

import (
	"fmt"

	"github.com/powersync/powersync/internal/automation"
	"github.com/slack-go/slack"
)

// SlackNotifier posts notifications to one Slack channel.
type SlackNotifier struct {
	SlackSender
	Channel string
}

type SlackSender interface {
	PostMessage(string, ...slack.MsgOption) (string, string, error)
}

var _ Notifier = &SlackNotifier{}

func (s *SlackNotifier) Notify(owner *automation.Owner, title, message string) error {
	_, _, err := s.SlackSender.PostMessage(s.Channel, slack.MsgOptionAttachments(slack.Attachment{
		Color: "good",
		Title: fmt.Sprintf("%s: %s", owner.Name, title),
		Text:  message,
	}))
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}
