package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileInbox is a MessageLister over a JSON file of exported messages,
// keyed by mailbox label. It stands in for a real mail client: the email
// pipeline upstream of this service drops fetched messages into the file.
type FileInbox struct {
	path string
}

// NewFileInbox builds a lister over the given export file.
func NewFileInbox(path string) *FileInbox {
	return &FileInbox{path: path}
}

// ListSince implements MessageLister. A missing export file is an empty
// inbox, not an error.
func (i *FileInbox) ListSince(ctx context.Context, mailboxLabel string, since time.Time) ([]EmailMessage, error) {
	data, err := os.ReadFile(i.path)
	if os.IsNotExist(err) {
		return []EmailMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox export %s: %w", i.path, err)
	}

	var mailboxes map[string][]EmailMessage
	if err := json.Unmarshal(data, &mailboxes); err != nil {
		return nil, fmt.Errorf("decode inbox export %s: %w", i.path, err)
	}

	var out []EmailMessage
	for _, msg := range mailboxes[mailboxLabel] {
		if msg.Received.After(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}
