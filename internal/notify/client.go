// Package notify publishes notification and alert triggers over AMQP.
// Every publish is fire-and-forget from the sync engine's point of view:
// delivery problems are logged, never returned into a sync run.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"finsync/internal/core"
)

const publishTimeout = 5 * time.Second

// Routing keys double as queue names on the direct exchange.
const (
	RouteNotifications = "notifications"
	RouteBudgetAlerts  = "budget_alerts"
)

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
}

func NewClient(url, exchangeName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{RouteNotifications, RouteBudgetAlerts} {
		if _, err := c.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// NotifyReauthRequired publishes a re-authentication push trigger.
func (c *Client) NotifyReauthRequired(ctx context.Context, userID, accountName, accountID string, platform core.Platform) {
	msg := &ReauthRequiredMessage{
		UserID:      userID,
		AccountID:   accountID,
		AccountName: accountName,
		Platform:    platform,
		Timestamp:   time.Now(),
	}
	body, err := msg.ToJSON()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal reauth message", "account_id", accountID, "error", err)
		return
	}
	if err := c.publish(ctx, RouteNotifications, "reauth_required", body); err != nil {
		slog.WarnContext(ctx, "Failed to publish reauth notification",
			"account_id", accountID, "platform", platform, "error", err)
		return
	}
	slog.InfoContext(ctx, "Published reauth notification",
		"account_id", accountID, "platform", platform)
}

// NotifySyncCompleted publishes a sync-completed push trigger.
func (c *Client) NotifySyncCompleted(ctx context.Context, userID, accountName string, transactionCount int, platform core.Platform) {
	msg := &SyncCompletedMessage{
		UserID:           userID,
		AccountName:      accountName,
		Platform:         platform,
		TransactionCount: transactionCount,
		Timestamp:        time.Now(),
	}
	body, err := msg.ToJSON()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal sync-completed message", "error", err)
		return
	}
	if err := c.publish(ctx, RouteNotifications, "sync_completed", body); err != nil {
		slog.WarnContext(ctx, "Failed to publish sync-completed notification",
			"platform", platform, "error", err)
	}
}

// PublishBudgetAlert asks the alert processor to re-evaluate the user's
// budgets. Invoked by the debounced alert trigger.
func (c *Client) PublishBudgetAlert(ctx context.Context, userID string) error {
	msg := &BudgetAlertMessage{UserID: userID, Timestamp: time.Now()}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal budget alert: %w", err)
	}
	if err := c.publish(ctx, RouteBudgetAlerts, "budget_alert", body); err != nil {
		return fmt.Errorf("publish budget alert: %w", err)
	}
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey, messageType string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Type:         messageType,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
