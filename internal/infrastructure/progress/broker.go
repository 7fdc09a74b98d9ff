package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// subscriberBuffer bounds one subscriber's backlog. A full subscriber drops
// events rather than stalling the classification pipeline; progress is
// ephemeral and the next event supersedes the lost one.
const subscriberBuffer = 256

type subscriber struct {
	id int
	ch chan domain.ProgressEvent
}

// Broker fans progress events out to per-document subscribers. Publish holds
// the broker lock while handing the event to every subscriber channel, so a
// single document's events are observed in emission order.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscriber
}

func NewBroker() *Broker {
	return &Broker{subs: map[string][]subscriber{}}
}

// Subscribe registers for one document's stream before it is submitted. The
// returned cancel is idempotent and must be called when the consumer leaves;
// the channel is closed either by cancel or by CloseDocument.
func (b *Broker) Subscribe(documentID string) (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscriber{id: b.nextID, ch: make(chan domain.ProgressEvent, subscriberBuffer)}
	b.subs[documentID] = append(b.subs[documentID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.remove(documentID, sub.id) })
	}
	return sub.ch, cancel
}

func (b *Broker) remove(documentID string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[documentID][:0]
	for _, sub := range b.subs[documentID] {
		if sub.id == id {
			close(sub.ch)
			continue
		}
		kept = append(kept, sub)
	}
	if len(kept) == 0 {
		delete(b.subs, documentID)
	} else {
		b.subs[documentID] = kept
	}
}

// Publish delivers the event to every subscriber of its document. A
// subscriber that cannot keep up loses the event.
func (b *Broker) Publish(_ context.Context, event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[event.DocumentID] {
		select {
		case sub.ch <- event:
		default:
			slog.Debug("progress subscriber lagging, event dropped",
				"document_id", event.DocumentID, "step", event.Step)
		}
	}
}

// CloseDocument ends the document's stream for all subscribers.
func (b *Broker) CloseDocument(documentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[documentID] {
		close(sub.ch)
	}
	delete(b.subs, documentID)
}
