package domain

import "context"

type Notification struct {
	Recipient string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
