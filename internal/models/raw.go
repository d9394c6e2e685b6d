package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord - ответ Compass не совпадает с ожидаемой формой обязательного поля.
var ErrMalformedRecord = errors.New("malformed record")

// RawRecord - одна запись из ответа Compass в исходном виде.
type RawRecord = json.RawMessage

// rawNewsItem повторяет поля GetNewsFeed. Все поля, кроме id и даты, необязательны.
type rawNewsItem struct {
	NewsItemID   *int64          `json:"NewsItemId"`
	ID           *int64          `json:"Id"`
	Title        *string         `json:"Title"`
	Content1     *string         `json:"Content1"`
	Content2     *string         `json:"Content2"`
	PostDateTime *string         `json:"PostDateTime"`
	UserName     *string         `json:"UserName"`
	Priority     *bool           `json:"Priority"`
	Attachments  []rawAttachment `json:"Attachments"`
}

type rawAttachment struct {
	ID                   *int64  `json:"Id"`
	Name                 *string `json:"Name"`
	OriginalFileName     *string `json:"OriginalFileName"`
	IsImage              *bool   `json:"IsImage"`
	SourceOrganisationID *int64  `json:"SourceOrganisationId"`
	UILink               *string `json:"UiLink"`
}

type rawMessage struct {
	ID         *int64  `json:"Id"`
	Timestamp  *string `json:"Timestamp"`
	Content    *string `json:"Content"`
	SenderName *string `json:"SenderName"`
	SenderID   *int64  `json:"SenderId"`
	NewsItemID *int64  `json:"NewsItemId"`
}

// ParseNewsItem разбирает запись новости. Отсутствующие строки становятся "",
// флаги - false, ссылки - nil.
func ParseNewsItem(raw RawRecord) (NewsItem, error) {
	var r rawNewsItem
	if err := json.Unmarshal(raw, &r); err != nil {
		return NewsItem{}, fmt.Errorf("%w: news item: %v", ErrMalformedRecord, err)
	}

	id := r.NewsItemID
	if id == nil {
		id = r.ID
	}
	if id == nil {
		return NewsItem{}, fmt.Errorf("%w: news item: missing id", ErrMalformedRecord)
	}
	if r.PostDateTime == nil {
		return NewsItem{}, fmt.Errorf("%w: news item %d: missing PostDateTime", ErrMalformedRecord, *id)
	}
	postedAt, err := ParseTimestamp(*r.PostDateTime)
	if err != nil {
		return NewsItem{}, fmt.Errorf("%w: news item %d: %v", ErrMalformedRecord, *id, err)
	}

	attachments := make([]Attachment, 0, len(r.Attachments))
	for _, ra := range r.Attachments {
		if ra.ID == nil {
			return NewsItem{}, fmt.Errorf("%w: news item %d: attachment without id", ErrMalformedRecord, *id)
		}
		attachments = append(attachments, Attachment{
			ID:                   *ra.ID,
			Name:                 str(ra.Name),
			FileName:             str(ra.OriginalFileName),
			IsImage:              flag(ra.IsImage),
			SourceOrganisationID: ra.SourceOrganisationID,
			URL:                  str(ra.UILink),
		})
	}

	return NewsItem{
		ID:    *id,
		Title: str(r.Title),
		Content: Content{
			HTML: str(r.Content1),
			Text: str(r.Content2),
		},
		PostedAt:    postedAt,
		Uploader:    str(r.UserName),
		Priority:    flag(r.Priority),
		Attachments: attachments,
	}, nil
}

// ParseMessage разбирает запись сообщения по тем же правилам умолчаний, что и ParseNewsItem.
func ParseMessage(raw RawRecord) (Message, error) {
	var r rawMessage
	if err := json.Unmarshal(raw, &r); err != nil {
		return Message{}, fmt.Errorf("%w: message: %v", ErrMalformedRecord, err)
	}
	if r.ID == nil {
		return Message{}, fmt.Errorf("%w: message: missing id", ErrMalformedRecord)
	}
	if r.Timestamp == nil {
		return Message{}, fmt.Errorf("%w: message %d: missing Timestamp", ErrMalformedRecord, *r.ID)
	}
	sentAt, err := ParseTimestamp(*r.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("%w: message %d: %v", ErrMalformedRecord, *r.ID, err)
	}

	return Message{
		ID:         *r.ID,
		SentAt:     sentAt,
		Content:    str(r.Content),
		SenderName: str(r.SenderName),
		SenderID:   r.SenderID,
		NewsItemID: r.NewsItemID,
	}, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func flag(p *bool) bool {
	return p != nil && *p
}

var aspNetDate = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

// ParseTimestamp понимает формат ASP.NET "/Date(ms+hhmm)/", RFC 3339 и ISO без зоны (считается UTC).
// Результат всегда в UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if m := aspNetDate.FindStringSubmatch(s); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnwrapEnvelope снимает обёртки ответа Compass: {"d": ...}, GenericMobileResponse
// с полем data и объект data со списком в items/messages/newsItems.
func UnwrapEnvelope(body []byte) ([]RawRecord, error) {
	payload := json.RawMessage(bytes.TrimSpace(body))
	for depth := 0; depth < 4; depth++ {
		if len(payload) == 0 {
			return nil, fmt.Errorf("%w: empty response", ErrMalformedRecord)
		}
		switch payload[0] {
		case '[':
			var records []RawRecord
			if err := json.Unmarshal(payload, &records); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
			}
			return records, nil
		case '{':
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(payload, &obj); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
			}
			next, ok := unwrapKey(obj)
			if !ok {
				return nil, fmt.Errorf("%w: no record list in response", ErrMalformedRecord)
			}
			payload = bytes.TrimSpace(next)
		default:
			return nil, fmt.Errorf("%w: unexpected response shape", ErrMalformedRecord)
		}
	}
	return nil, fmt.Errorf("%w: response nested too deeply", ErrMalformedRecord)
}

func unwrapKey(obj map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, key := range []string{"d", "data", "items", "messages", "newsItems"} {
		if v, ok := obj[key]; ok {
			return v, true
		}
	}
	return nil, false
}
