package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nishinokaede/yunaMessage/internal/config"
	"github.com/nishinokaede/yunaMessage/internal/database"
	"github.com/nishinokaede/yunaMessage/internal/ingest"
	"github.com/nishinokaede/yunaMessage/internal/scheduler"
	"github.com/nishinokaede/yunaMessage/internal/server"
)

func newTestServer(t *testing.T, taskMap map[string]ingest.TaskFunc) (*server.Server, database.Store, *config.Config) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, log)

	if taskMap == nil {
		taskMap = map[string]ingest.TaskFunc{}
	}
	sched := scheduler.New(log, &config.SchedulerConfig{}, taskMap)

	cfg := &config.Config{
		Log:     config.LogConfig{Level: "info"},
		Server:  config.ServerConfig{ListenAddr: ":0", FileBaseURL: "http://files.example.com"},
		Storage: config.StorageConfig{MessageDir: t.TempDir()},
	}

	return server.New(log, cfg, store, sched), store, cfg
}

func seedMessage(t *testing.T, store database.Store, msg database.Message) {
	t.Helper()
	if err := store.UpsertMessage(context.Background(), &msg); err != nil {
		t.Fatalf("failed to seed message %q: %v", msg.MsgID, err)
	}
}

func listMessages(t *testing.T, handler http.Handler, query string) []server.MessageOut {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages"+query, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /messages%s returned %d: %s", query, rec.Code, rec.Body.String())
	}

	var out []server.MessageOut
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestListMessagesNumericIDsSortFirst(t *testing.T) {
	t.Parallel()
	srv, store, _ := newTestServer(t, nil)

	for _, id := range []string{"abc", "10", "2"} {
		seedMessage(t, store, database.Message{MsgID: id, MessageType: "text"})
	}

	out := listMessages(t, srv.Handler(), "")

	want := []string{"2", "10", "abc"}
	if len(out) != len(want) {
		t.Fatalf("got %d messages, want %d", len(out), len(want))
	}
	for i, id := range want {
		if out[i].MsgID != id {
			t.Errorf("position %d: got %q, want %q", i, out[i].MsgID, id)
		}
	}
}

func TestListMessagesBuildsMediaURL(t *testing.T) {
	t.Parallel()
	srv, store, _ := newTestServer(t, nil)

	seedMessage(t, store, database.Message{
		MsgID:       "1",
		MessageType: "image",
		FilePath:    "/srv/data/messages/alice/1_1_20240101120000.jpg",
		MemberName:  "alice",
	})
	seedMessage(t, store, database.Message{
		MsgID:       "2",
		MessageType: "text",
		TextContent: "plain",
		FilePath:    "/srv/data/messages/alice/2_0_20240101130000.txt",
		MemberName:  "alice",
	})
	seedMessage(t, store, database.Message{
		MsgID:       "3",
		MessageType: "audio",
		MemberName:  "alice",
	})

	out := listMessages(t, srv.Handler(), "")
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}

	wantURL := "http://files.example.com/data/messages/alice/1_1_20240101120000.jpg"
	if out[0].URL != wantURL {
		t.Errorf("image URL: got %q, want %q", out[0].URL, wantURL)
	}
	if out[1].URL != "" {
		t.Errorf("text message must not carry a URL, got %q", out[1].URL)
	}
	if out[2].URL != "" {
		t.Errorf("media message without stored file must not carry a URL, got %q", out[2].URL)
	}
}

func TestListMessagesDateFilter(t *testing.T) {
	t.Parallel()
	srv, store, _ := newTestServer(t, nil)

	seedMessage(t, store, database.Message{
		MsgID: "1", MessageType: "text", PublishedAt: "20240101120000",
	})
	seedMessage(t, store, database.Message{
		MsgID: "2", MessageType: "text", PublishedAt: "20240102090000",
	})
	// No published_at; the date comes from the stored filename.
	seedMessage(t, store, database.Message{
		MsgID: "3", MessageType: "image",
		FilePath: "/srv/data/messages/alice/3_1_20240101150000.jpg",
	})

	out := listMessages(t, srv.Handler(), "?date=20240101")

	got := map[string]bool{}
	for _, msg := range out {
		got[msg.MsgID] = true
	}
	if len(out) != 2 || !got["1"] || !got["3"] {
		t.Errorf("date filter returned wrong set: %+v", out)
	}
}

func TestListMessagesRejectsMalformedDate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		date string
	}{
		{name: "too short", date: "202401"},
		{name: "non-numeric", date: "2024-01-0"},
		{name: "too long", date: "202401011"},
	}

	srv, _, _ := newTestServer(t, nil)
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/messages?date="+tc.date, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400", rec.Code)
			}
		})
	}
}

func TestListMessagesFilterByMsgID(t *testing.T) {
	t.Parallel()
	srv, store, _ := newTestServer(t, nil)

	seedMessage(t, store, database.Message{MsgID: "1", MessageType: "text"})
	seedMessage(t, store, database.Message{MsgID: "2", MessageType: "text", TextContent: "target"})

	out := listMessages(t, srv.Handler(), "?msg_id=2")
	if len(out) != 1 || out[0].MsgID != "2" || out[0].TextContent != "target" {
		t.Errorf("msg_id filter returned wrong rows: %+v", out)
	}
}

func TestManualTriggerStartsJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv, _, _ := newTestServer(t, map[string]ingest.TaskFunc{
		config.JobGetToken: func(_ context.Context) error {
			close(started)
			return nil
		},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/manual/getToken", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "in_progress" {
		t.Errorf("got status field %v, want in_progress", body["status"])
	}

	<-started
}

func TestManualTriggerUnknownJob(t *testing.T) {
	t.Parallel()

	// Empty task map: both job routes exist but nothing is registered.
	srv, _, _ := newTestServer(t, map[string]ingest.TaskFunc{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/manual/getMessage", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestStaticMediaServing(t *testing.T) {
	t.Parallel()
	srv, _, cfg := newTestServer(t, nil)

	memberDir := filepath.Join(cfg.Storage.MessageDir, "alice")
	if err := os.MkdirAll(memberDir, 0o755); err != nil {
		t.Fatalf("failed to create member dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(memberDir, "1_1_20240101120000.jpg"), []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("failed to write media file: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/messages/alice/1_1_20240101120000.jpg", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if rec.Body.String() != "jpeg-bytes" {
		t.Errorf("got body %q", rec.Body.String())
	}
}
