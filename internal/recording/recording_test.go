package recording

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"eviproxy/internal/domain"
)

func mustMessage(t *testing.T, raw string) domain.Message {
	t.Helper()
	m, err := domain.ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return m
}

func TestSaveWritesOneObjectPerLine(t *testing.T) {
	t.Parallel()

	store := NewStore(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "nested", "session.jsonl")
	messages := []domain.Message{
		mustMessage(t, `{"type":"chat_metadata","chat_id":"c1"}`),
		mustMessage(t, `{ "type": "assistant_message", "message": {"content": "hi"} }`),
	}

	if err := store.Save(path, messages); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := "{\"type\":\"chat_metadata\",\"chat_id\":\"c1\"}\n{\"type\":\"assistant_message\",\"message\":{\"content\":\"hi\"}}\n"
	if string(data) != want {
		t.Fatalf("unexpected file contents:\n%s", data)
	}
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	store := NewStore(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte("old contents that are longer than the new ones\n"), 0o600); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := store.Save(path, []domain.Message{mustMessage(t, `{"type":"a"}`)}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{\"type\":\"a\"}\n" {
		t.Fatalf("file was not overwritten: %q", data)
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.jsonl")
	contents := "{\"type\":\"a\",\"n\":1}\n{\"type\":\"b\",\n\n{\"type\":\"c\",\"n\":3}\n   \n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := NewStore(zerolog.Nop()).Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := []domain.Message{
		mustMessage(t, `{"type":"a","n":1}`),
		mustMessage(t, `{"type":"c","n":3}`),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected messages (-want +got):\n%s", diff)
	}
}

func TestLoadOneCorruptAmongThreeValid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mixed.jsonl")
	contents := "{\"type\":\"a\"}\nnot-json\n{\"type\":\"b\"}\n{\"type\":\"c\"}"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := NewStore(zerolog.Nop()).Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 3 || got[0].Type != "a" || got[2].Type != "c" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := NewStore(zerolog.Nop()).Load(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "round.jsonl")
	messages := []domain.Message{
		mustMessage(t, `{"type":"chat_metadata","chat_group_id":"g"}`),
		mustMessage(t, `{"type":"audio_output","data":"UklGRg=="}`),
		mustMessage(t, `{"type":"assistant_end"}`),
	}

	if err := store.Save(path, messages); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, err := store.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if diff := cmp.Diff(messages, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
