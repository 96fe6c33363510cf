package ops

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeSource struct {
	live, inProgress, completed int
}

func (f fakeSource) LiveSessions() int    { return f.live }
func (f fakeSource) GamesInProgress() int { return f.inProgress }
func (f fakeSource) GamesCompleted() int  { return f.completed }

func TestHealthz(t *testing.T) {
	s := New(fakeSource{}, time.Second, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Result().Body)
	if strings.TrimSpace(string(body)) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
}

func TestMetricsStreamsSnapshots(t *testing.T) {
	src := fakeSource{live: 3, inProgress: 1, completed: 7}
	s := New(src, 10*time.Millisecond, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/metrics"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if snap.LiveSessions != 3 || snap.GamesInProgress != 1 || snap.GamesCompleted != 7 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
