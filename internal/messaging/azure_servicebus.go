package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/flightguild/bot/config"
	"example.com/flightguild/bot/internal/audit"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
)

// sender is the part of azservicebus.Sender the publisher uses
type sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusPublisher publishes audit entries to an Azure Service Bus queue
type ServiceBusPublisher struct {
	client    *azservicebus.Client
	sender    sender
	queueName string
	source    string
}

// NewServiceBusPublisher creates a publisher for cfg.QueueName
func NewServiceBusPublisher(cfg config.AzureConfig, source string) (*ServiceBusPublisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	s, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBusPublisher{
		client:    client,
		sender:    s,
		queueName: cfg.QueueName,
		source:    source,
	}, nil
}

// Record implements audit.Sink
func (p *ServiceBusPublisher) Record(ctx context.Context, entry audit.Entry) error {
	msg, err := p.buildMessage(entry)
	if err != nil {
		return err
	}
	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrapf(err, "failed to publish %s to %s", entry.Kind, p.queueName)
	}
	return nil
}

func (p *ServiceBusPublisher) buildMessage(entry audit.Entry) (*azservicebus.Message, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal audit entry")
	}
	subject := string(entry.Kind)
	return &azservicebus.Message{
		Body:    data,
		Subject: &subject,
		ApplicationProperties: map[string]interface{}{
			"source": p.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// Close closes the sender and the client
func (p *ServiceBusPublisher) Close(ctx context.Context) error {
	if p.sender != nil {
		if err := p.sender.Close(ctx); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(ctx)
	}
	return nil
}
