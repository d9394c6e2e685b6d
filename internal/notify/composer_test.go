package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"compass_sync/internal/models"
	"compass_sync/internal/notify"
	"compass_sync/internal/syncer"

	"github.com/stretchr/testify/require"
)

type memNews map[int64]models.NewsItem

func (m memNews) Find(_ context.Context, id int64) (models.NewsItem, bool, error) {
	item, ok := m[id]
	return item, ok, nil
}

type failingNews struct{}

func (failingNews) Find(context.Context, int64) (models.NewsItem, bool, error) {
	return models.NewsItem{}, false, errors.New("disk error")
}

func int64Ptr(v int64) *int64 { return &v }

var recipients = []string{"parent@example.com", "other@example.com"}

func sampleItem() models.NewsItem {
	return models.NewsItem{
		ID:       7,
		Title:    "Excursion",
		Content:  models.Content{Text: "Bring a hat", HTML: "<p>Bring a hat</p>"},
		PostedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Attachments: []models.Attachment{
			{ID: 70, Name: "Form", FileName: "form.pdf"},
			{ID: 71, Name: "Map", FileName: "map.png", IsImage: true, URL: "/download/71"},
		},
	}
}

func TestCompose_NewsItem(t *testing.T) {
	c := notify.NewComposer("compass@example.com", recipients, memNews{})

	payloads := c.Compose(context.Background(), &syncer.Result{NewNewsItems: []models.NewsItem{sampleItem()}})
	require.Len(t, payloads, 1)

	p := payloads[0]
	require.Equal(t, recipients, p.Recipients)
	require.Equal(t, "compass@example.com", p.Sender)
	require.Equal(t, "Excursion", p.Subject)
	require.Equal(t, "<p>Bring a hat</p>", p.Body)
	require.Equal(t, []notify.AttachmentRef{
		{ID: 70, Name: "Form", FileName: "form.pdf"},
		{ID: 71, Name: "Map", FileName: "map.png", IsImage: true, URL: "/download/71"},
	}, p.Attachments)
}

func TestCompose_MessageJoinsNewsItem(t *testing.T) {
	item := sampleItem()
	c := notify.NewComposer("compass@example.com", recipients, memNews{item.ID: item})

	msg := models.Message{ID: 1, Content: "New excursion posted", NewsItemID: int64Ptr(item.ID)}
	payloads := c.Compose(context.Background(), &syncer.Result{NewMessages: []models.Message{msg}})
	require.Len(t, payloads, 1)
	require.Equal(t, "New excursion posted", payloads[0].Subject)
	require.Equal(t, "<p>Bring a hat</p>", payloads[0].Body)
	require.Len(t, payloads[0].Attachments, 2)
	require.Equal(t, int64(70), payloads[0].Attachments[0].ID)
}

func TestCompose_MessageWithoutRelatedItem(t *testing.T) {
	tests := []struct {
		name   string
		finder notify.NewsItemFinder
		ref    *int64
	}{
		{name: "no reference", finder: memNews{}},
		{name: "missing item", finder: memNews{}, ref: int64Ptr(404)},
		{name: "lookup error", finder: failingNews{}, ref: int64Ptr(7)},
		{name: "no finder", finder: nil, ref: int64Ptr(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := notify.NewComposer("compass@example.com", recipients, tt.finder)
			msg := models.Message{ID: 2, Content: "Reminder", NewsItemID: tt.ref}

			payloads := c.Compose(context.Background(), &syncer.Result{NewMessages: []models.Message{msg}})
			require.Len(t, payloads, 1)
			require.Equal(t, "Reminder", payloads[0].Subject)
			require.Equal(t, "Reminder", payloads[0].Body)
			require.NotNil(t, payloads[0].Attachments)
			require.Empty(t, payloads[0].Attachments)
		})
	}
}

func TestCompose_MessageRelatedItemWithoutContent(t *testing.T) {
	item := sampleItem()
	item.Content = models.Content{}
	c := notify.NewComposer("compass@example.com", recipients, memNews{item.ID: item})

	msg := models.Message{ID: 3, Content: "Form attached", NewsItemID: int64Ptr(item.ID)}
	payloads := c.Compose(context.Background(), &syncer.Result{NewMessages: []models.Message{msg}})
	require.Len(t, payloads, 1)
	require.Equal(t, "Form attached", payloads[0].Subject)
	require.Empty(t, payloads[0].Body)
	require.Len(t, payloads[0].Attachments, 2)
}

func TestCompose_Order(t *testing.T) {
	item := sampleItem()
	c := notify.NewComposer("compass@example.com", recipients, memNews{})
	res := &syncer.Result{
		NewMessages:  []models.Message{{ID: 1, Content: "first"}, {ID: 2, Content: "second"}},
		NewNewsItems: []models.NewsItem{item},
	}

	payloads := c.Compose(context.Background(), res)
	var subjects []string
	for _, p := range payloads {
		subjects = append(subjects, p.Subject)
	}
	require.Equal(t, []string{"first", "second", "Excursion"}, subjects)
}

func TestCompose_Empty(t *testing.T) {
	c := notify.NewComposer("compass@example.com", recipients, memNews{})
	require.Empty(t, c.Compose(context.Background(), &syncer.Result{}))
	require.Nil(t, c.Compose(context.Background(), nil))
}

func TestWriterPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := notify.NewWriterPublisher(&buf)
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, notify.Payload{Subject: "a", Attachments: []notify.AttachmentRef{}}))
	require.NoError(t, pub.Publish(ctx, notify.Payload{Subject: "b", Attachments: []notify.AttachmentRef{}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var decoded notify.Payload
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	require.Equal(t, "b", decoded.Subject)
	require.Contains(t, lines[0], `"attachments":[]`)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, pub.Publish(cancelled, notify.Payload{}), context.Canceled)
}
