package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/DomeLiquid/liquidator/utils"
	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/pkg/errors"
)

type messenger interface {
	SendMessage(ctx context.Context, input *mixin.MessageRequest) error
}

// MixinSender posts plain text messages to Mixin users from a bot account.
type MixinSender struct {
	client     messenger
	botId      string
	recipients []string
}

var _ Sender = (*MixinSender)(nil)

func NewMixinSender(keystorePath string, recipients []string) (*MixinSender, error) {
	raw, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, errors.Wrap(err, "notify/mixin: read keystore")
	}
	var store mixin.Keystore
	if err := json.Unmarshal(raw, &store); err != nil {
		return nil, errors.Wrap(err, "notify/mixin: decode keystore")
	}
	client, err := mixin.NewFromKeystore(&store)
	if err != nil {
		return nil, errors.Wrap(err, "notify/mixin: client")
	}
	return &MixinSender{client: client, botId: client.ClientID, recipients: recipients}, nil
}

func (m *MixinSender) Name() string {
	return "mixin"
}

func (m *MixinSender) Send(ctx context.Context, title, message string) error {
	text := title
	if message != "" {
		text += "\n" + message
	}
	data := base64.StdEncoding.EncodeToString([]byte(text))

	for _, recipient := range m.recipients {
		req := &mixin.MessageRequest{
			ConversationID: mixin.UniqueConversationID(m.botId, recipient),
			RecipientID:    recipient,
			// same text to the same user is sent once
			MessageID: utils.GenUuidFromStrings(m.botId, recipient, text),
			Category:  mixin.MessageCategoryPlainText,
			Data:      data,
		}
		if err := m.client.SendMessage(ctx, req); err != nil {
			return errors.Wrapf(err, "notify/mixin: send to %s", recipient)
		}
	}
	return nil
}
