package notifier

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/powersync/powersync/internal/automation"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifier(t *testing.T) {
	sender := &fakeSlackSender{}
	n := SlackNotifier{SlackSender: sender, Channel: "C123"}
	owner := &automation.Owner{Name: "alice"}

	require.NoError(t, n.Notify(owner, "battery full", "battery charged to 80% (threshold 80%)"))
	require.Len(t, sender.posted, 1)
	assert.Equal(t, "C123", sender.posted[0].channel)
	require.Len(t, sender.posted[0].attachments, 1)
	assert.Equal(t, "alice: battery full", sender.posted[0].attachments[0].Title)
	assert.Equal(t, "battery charged to 80% (threshold 80%)", sender.posted[0].attachments[0].Text)

	sender.err = errors.New("channel_not_found")
	assert.Error(t, n.Notify(owner, "title", "message"))
}

func TestNotifiers(t *testing.T) {
	sender := &fakeSlackSender{err: errors.New("slack down")}
	n := Notifiers{
		SlogNotifier{Logger: slog.New(slog.DiscardHandler)},
		&SlackNotifier{SlackSender: sender, Channel: "C123"},
	}

	// one destination failing surfaces the error but does not stop the rest
	err := n.Notify(&automation.Owner{Name: "alice"}, "title", "message")
	assert.Error(t, err)
}

type postedMessage struct {
	channel     string
	attachments []slack.Attachment
}

type fakeSlackSender struct {
	posted []postedMessage
	err    error
}

func (f *fakeSlackSender) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	_, values, err := slack.UnsafeApplyMsgOptions("token", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return "", "", err
	}
	var attachments []slack.Attachment
	if encoded := values.Get("attachments"); encoded != "" {
		if err = json.Unmarshal([]byte(encoded), &attachments); err != nil {
			return "", "", err
		}
	}
	f.posted = append(f.posted, postedMessage{channel: channelID, attachments: attachments})
	return "", "", nil
}
