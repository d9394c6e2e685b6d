package models

import (
	"sort"
	"time"
)

// Kind задаёт пространство ключей сущностей в хранилище.
type Kind string

const (
	KindNewsItem   Kind = "news_items"
	KindMessage    Kind = "messages"
	KindAttachment Kind = "attachments"
)

// Entity - запись с устойчивым числовым идентификатором.
type Entity interface {
	EntityID() int64
}

// SameEntity сообщает, что a и b - одна сущность. Остальные поля не сравниваются.
func SameEntity(a, b Entity) bool {
	return a.EntityID() == b.EntityID()
}

// Content хранит текст в двух представлениях: простой текст и HTML.
type Content struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// Best возвращает HTML, если он есть, иначе простой текст.
func (c Content) Best() string {
	if c.HTML != "" {
		return c.HTML
	}
	return c.Text
}

// NewsItem - новость из ленты Compass. Владеет своими вложениями.
type NewsItem struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Content     Content      `json:"content"`
	PostedAt    time.Time    `json:"posted_at"`
	Uploader    string       `json:"uploader"`
	Priority    bool         `json:"priority"`
	Attachments []Attachment `json:"attachments"`
}

func (n NewsItem) EntityID() int64 { return n.ID }

// Message - сообщение из почтового ящика Compass.
// NewsItemID - слабая ссылка: связанная новость может отсутствовать в хранилище.
type Message struct {
	ID         int64     `json:"id"`
	SentAt     time.Time `json:"sent_at"`
	Content    string    `json:"content"`
	SenderName string    `json:"sender_name"`
	SenderID   *int64    `json:"sender_id"`
	NewsItemID *int64    `json:"news_item_id"`
}

func (m Message) EntityID() int64 { return m.ID }

// Attachment - метаданные файла. Data не сериализуется в запись:
// содержимое хранится отдельным бинарным объектом с тем же id.
type Attachment struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	FileName             string `json:"file_name"`
	IsImage              bool   `json:"is_image"`
	SourceOrganisationID *int64 `json:"source_organisation_id"`
	URL                  string `json:"url"`
	Data                 []byte `json:"-"`
}

func (a Attachment) EntityID() int64 { return a.ID }

// Metadata возвращает копию вложения без содержимого.
func (a Attachment) Metadata() Attachment {
	a.Data = nil
	return a
}

// SortNewsItems упорядочивает новости по времени публикации, при равенстве - по id.
func SortNewsItems(items []NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return chronological(items[i].PostedAt, items[i].ID, items[j].PostedAt, items[j].ID)
	})
}

// SortMessages упорядочивает сообщения по времени отправки, при равенстве - по id.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return chronological(msgs[i].SentAt, msgs[i].ID, msgs[j].SentAt, msgs[j].ID)
	})
}

func chronological(ti time.Time, idi int64, tj time.Time, idj int64) bool {
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	return idi < idj
}
