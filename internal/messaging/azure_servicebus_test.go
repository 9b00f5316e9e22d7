package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/audit"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error {
	args := m.Called(ctx, message, options)
	return args.Error(0)
}

func (m *MockSender) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestRecordPublishesEntry(t *testing.T) {
	s := new(MockSender)
	publisher := &ServiceBusPublisher{sender: s, queueName: "guild-moderation", source: "guildbot"}
	entry := audit.Entry{Kind: audit.BanApplied, SubjectID: "42", At: time.Unix(0, 0).UTC()}

	s.On("SendMessage", mock.Anything, mock.MatchedBy(func(msg *azservicebus.Message) bool {
		var decoded audit.Entry
		if err := json.Unmarshal(msg.Body, &decoded); err != nil {
			return false
		}
		return decoded.SubjectID == "42" && *msg.Subject == "ban.applied" && msg.ApplicationProperties["source"] == "guildbot"
	}), mock.Anything).Return(nil)

	require.NoError(t, publisher.Record(context.Background(), entry))
	s.AssertExpectations(t)
}

func TestNewServiceBusPublisherRequiresConnectionString(t *testing.T) {
	_, err := NewServiceBusPublisher(config.AzureConfig{QueueName: "q"}, "guildbot")
	require.Error(t, err)
}
