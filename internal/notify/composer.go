package notify

import (
	"context"

	"compass_sync/internal/logger"
	"compass_sync/internal/models"
	"compass_sync/internal/syncer"
)

// AttachmentRef - ссылка на сохранённое вложение. Содержимое в уведомление не копируется.
type AttachmentRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	IsImage  bool   `json:"is_image"`
	URL      string `json:"url,omitempty"`
}

// Payload - уведомление, одинаковое по форме для сообщений и новостей.
type Payload struct {
	Recipients  []string        `json:"recipients"`
	Sender      string          `json:"sender"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	Attachments []AttachmentRef `json:"attachments"`
}

// NewsItemFinder ищет новость по id. Реализуется repository.NewsItems.
// Без него (nil) сообщения не связываются с новостями.
type NewsItemFinder interface {
	Find(ctx context.Context, id int64) (models.NewsItem, bool, error)
}

// Composer собирает уведомления из новых сущностей прохода.
type Composer struct {
	sender     string
	recipients []string
	news       NewsItemFinder
}

func NewComposer(sender string, recipients []string, news NewsItemFinder) *Composer {
	return &Composer{
		sender:     sender,
		recipients: append([]string(nil), recipients...),
		news:       news,
	}
}

// Compose возвращает уведомления: сначала по сообщениям, затем по новостям,
// каждая группа в порядке Result. Ничего не отправляет.
func (c *Composer) Compose(ctx context.Context, res *syncer.Result) []Payload {
	if res == nil {
		return nil
	}
	payloads := make([]Payload, 0, len(res.NewMessages)+len(res.NewNewsItems))
	for _, msg := range res.NewMessages {
		payloads = append(payloads, c.forMessage(ctx, msg))
	}
	for _, item := range res.NewNewsItems {
		payloads = append(payloads, c.forNewsItem(item))
	}
	return payloads
}

// forMessage присоединяет связанную новость. Если её нет, тело - текст сообщения,
// а список вложений пуст.
func (c *Composer) forMessage(ctx context.Context, msg models.Message) Payload {
	p := c.payload(msg.Content, msg.Content, nil)
	if msg.NewsItemID == nil || c.news == nil {
		return p
	}

	item, ok, err := c.news.Find(ctx, *msg.NewsItemID)
	if err != nil {
		logger.Log.WithError(err).WithFields(logger.Fields{
			"message_id":   msg.ID,
			"news_item_id": *msg.NewsItemID,
		}).Warn("Related news item lookup failed")
		return p
	}
	if !ok {
		logger.Log.WithFields(logger.Fields{
			"message_id":   msg.ID,
			"news_item_id": *msg.NewsItemID,
		}).Debug("Related news item not found")
		return p
	}

	p.Body = item.Content.Best()
	p.Attachments = refs(item.Attachments)
	return p
}

func (c *Composer) forNewsItem(item models.NewsItem) Payload {
	return c.payload(item.Title, item.Content.Best(), item.Attachments)
}

func (c *Composer) payload(subject, body string, attachments []models.Attachment) Payload {
	return Payload{
		Recipients:  append([]string(nil), c.recipients...),
		Sender:      c.sender,
		Subject:     subject,
		Body:        body,
		Attachments: refs(attachments),
	}
}

func refs(attachments []models.Attachment) []AttachmentRef {
	out := make([]AttachmentRef, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, AttachmentRef{
			ID:       a.ID,
			Name:     a.Name,
			FileName: a.FileName,
			IsImage:  a.IsImage,
			URL:      a.URL,
		})
	}
	return out
}
