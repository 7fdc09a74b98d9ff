package httpadapter

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/export"
	"github.com/arkeyez/arkdoc/internal/infrastructure/progress"
	"github.com/arkeyez/arkdoc/internal/observability/metrics"
)

func TestProgressWebSocketStreamsEventsInOrder(t *testing.T) {
	broker := progress.NewBroker()
	reader := &readerFake{}
	router := NewRouter(
		&submitterFake{}, reader, reader,
		&modelFake{snapshot: domain.ModelSnapshot{Phase: domain.ModelNotLoaded}},
		broker,
		export.NewService(reader, reader, nil),
		metrics.NewHTTPServerMetrics("api"),
		Options{},
	)

	server := httptest.NewServer(router.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/documents/doc-1/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The handler subscribes before completing the upgrade handshake, so
	// once Dial returns the subscription exists and publishing is safe.
	want := []domain.ProgressStep{
		domain.StepPageStarted,
		domain.StepPageComplete,
		domain.StepDocumentComplete,
	}
	for i, step := range want {
		broker.Publish(context.Background(), domain.ProgressEvent{
			DocumentID: "doc-1",
			Step:       step,
			Progress:   float64(i+1) / float64(len(want)),
		})
	}
	broker.CloseDocument("doc-1")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, step := range want {
		var event domain.ProgressEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read event %s: %v", step, err)
		}
		if event.Step != step {
			t.Fatalf("got step %s, want %s", event.Step, step)
		}
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after document completion")
	}
}
