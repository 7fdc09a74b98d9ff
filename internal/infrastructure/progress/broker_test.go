package progress

import (
	"context"
	"testing"
	"time"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

func TestBrokerDeliversInOrder(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("doc-1")
	defer cancel()

	steps := []domain.ProgressStep{
		domain.StepPageStarted,
		domain.StepTextExtracted,
		domain.StepVisionClassified,
		domain.StepFusionComplete,
		domain.StepPageComplete,
		domain.StepDocumentComplete,
	}
	for i, step := range steps {
		b.Publish(context.Background(), domain.ProgressEvent{
			DocumentID: "doc-1",
			Step:       step,
			Progress:   float64(i+1) / float64(len(steps)),
		})
	}
	b.CloseDocument("doc-1")

	var got []domain.ProgressStep
	for event := range ch {
		got = append(got, event.Step)
	}
	if len(got) != len(steps) {
		t.Fatalf("received %d events, want %d", len(got), len(steps))
	}
	for i, step := range steps {
		if got[i] != step {
			t.Fatalf("event %d = %s, want %s", i, got[i], step)
		}
	}
}

func TestBrokerIsolatesDocuments(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("doc-a")
	defer cancel()

	b.Publish(context.Background(), domain.ProgressEvent{DocumentID: "doc-b", Step: domain.StepPageStarted})

	select {
	case event := <-ch:
		t.Fatalf("received foreign document event: %+v", event)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBrokerCancelIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("doc-1")

	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("cancel must close the subscriber channel")
	}

	// Publishing after cancel must not panic or deliver.
	b.Publish(context.Background(), domain.ProgressEvent{DocumentID: "doc-1", Step: domain.StepPageStarted})
}

func TestBrokerCloseDocumentEndsAllStreams(t *testing.T) {
	b := NewBroker()
	first, cancelFirst := b.Subscribe("doc-1")
	second, cancelSecond := b.Subscribe("doc-1")
	defer cancelFirst()
	defer cancelSecond()

	b.Publish(context.Background(), domain.ProgressEvent{DocumentID: "doc-1", Step: domain.StepDocumentComplete, Progress: 1})
	b.CloseDocument("doc-1")

	for _, ch := range []<-chan domain.ProgressEvent{first, second} {
		event, open := <-ch
		if !open || event.Step != domain.StepDocumentComplete {
			t.Fatalf("expected final event before close, got (%+v, open=%v)", event, open)
		}
		if _, open := <-ch; open {
			t.Fatalf("stream must be closed after CloseDocument")
		}
	}
}
