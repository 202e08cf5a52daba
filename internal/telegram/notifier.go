package telegram

import "context"

// Notifier delivers alert messages to a single chat.
type Notifier struct {
	client *Client
	chatID string
}

func NewNotifier(client *Client, chatID string) *Notifier {
	return &Notifier{client: client, chatID: chatID}
}

func (n *Notifier) Notify(ctx context.Context, msg string) error {
	if n == nil || n.client == nil || n.chatID == "" {
		return nil
	}
	return n.client.SendMessage(ctx, n.chatID, msg)
}
