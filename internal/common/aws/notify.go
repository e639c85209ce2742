// internal/common/aws/notify.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/max-tl-2000/red-sub014/internal/models"
)

// ApplicationUpdatedNotifier fans screening completions out to downstream
// consumers over SNS.
type ApplicationUpdatedNotifier struct {
	sns      *SNSClient
	topicARN string
	enabled  bool
}

func NewApplicationUpdatedNotifier(sns *SNSClient, topicARN string, enabled bool) *ApplicationUpdatedNotifier {
	return &ApplicationUpdatedNotifier{sns: sns, topicARN: topicARN, enabled: enabled}
}

// NotifyApplicationUpdated publishes an APPLICATION_UPDATED event for the
// party whose screening state changed.
func (n *ApplicationUpdatedNotifier) NotifyApplicationUpdated(ctx context.Context, event models.ApplicationUpdated) error {
	if !n.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal application updated event: %w", err)
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(n.topicARN),
		Subject:  awssdk.String("APPLICATION_UPDATED"),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String("APPLICATION_UPDATED"),
			},
			"tenantId": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(event.TenantID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

// AlertMailer sends operational alert emails for long-running screening
// requests via SES.
type AlertMailer struct {
	ses       *SESClient
	fromEmail string
	toEmail   string
	enabled   bool
}

func NewAlertMailer(ses *SESClient, fromEmail, toEmail string, enabled bool) *AlertMailer {
	return &AlertMailer{ses: ses, fromEmail: fromEmail, toEmail: toEmail, enabled: enabled}
}

// SendLongRunningAlert mails an alert for a submission that has not received
// a provider response within the SLA.
func (m *AlertMailer) SendLongRunningAlert(ctx context.Context, alert models.LongRunningAlert) error {
	if !m.enabled {
		return nil
	}

	subject := fmt.Sprintf("[screening] long-running request %s", alert.ScreeningRequestID)
	body := fmt.Sprintf(
		"Screening request %s for tenant %s party %s has been pending for %s (type %s).\nLast provider transaction: %s",
		alert.ScreeningRequestID, alert.TenantID, alert.PartyID,
		alert.PendingFor, alert.RequestType, alert.TransactionNumber,
	)

	_, err := m.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(m.fromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{m.toEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}
