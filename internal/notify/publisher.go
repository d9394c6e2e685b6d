package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Publisher передаёт готовое уведомление слою доставки.
type Publisher interface {
	Publish(ctx context.Context, p Payload) error
}

// WriterPublisher пишет уведомления в w построчно в формате JSON.
type WriterPublisher struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterPublisher(w io.Writer) *WriterPublisher {
	return &WriterPublisher{enc: json.NewEncoder(w)}
}

func (p *WriterPublisher) Publish(ctx context.Context, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}
