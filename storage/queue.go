package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"tessera/domain"
)

// Queue carries matrix events through an Azure storage queue.
type Queue struct {
	client *azqueue.QueueClient
}

// Message is a dequeued event with the receipt needed to delete it.
type Message struct {
	ID         string
	PopReceipt string
	Body       string
	Dequeued   int64
}

// NewQueue connects to the named queue.
func NewQueue(connStr, name string) (*Queue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &Queue{client: client}, nil
}

// Publish enqueues ev.
func (q *Queue) Publish(ctx context.Context, ev domain.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Receive dequeues one message, or returns nil when the queue is empty.
func (q *Queue) Receive(ctx context.Context) (*Message, error) {
	resp, err := q.client.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	m := resp.Messages[0]
	msg := &Message{}
	if m.MessageID != nil {
		msg.ID = *m.MessageID
	}
	if m.PopReceipt != nil {
		msg.PopReceipt = *m.PopReceipt
	}
	if m.MessageText != nil {
		msg.Body = *m.MessageText
	}
	if m.DequeueCount != nil {
		msg.Dequeued = *m.DequeueCount
	}
	return msg, nil
}

// Delete removes a processed message.
func (q *Queue) Delete(ctx context.Context, msg *Message) error {
	_, err := q.client.DeleteMessage(ctx, msg.ID, msg.PopReceipt, nil)
	return err
}

// DecodeEvent parses a message body.
func DecodeEvent(body string) (domain.Event, error) {
	var ev domain.Event
	err := sonic.UnmarshalString(body, &ev)
	return ev, err
}
