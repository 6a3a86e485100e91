package firefox

import (
	"encoding/binary"
	"testing"

	"github.com/pierrec/lz4/v4"
)

func TestDecompressMozLz4(t *testing.T) {
	t.Run("valid mozlz4 payload", func(t *testing.T) {
		original := []byte(`{"windows":[{"tabs":[]}]}`)

		// Compress with lz4 block compression.
		dst := make([]byte, lz4.CompressBlockBound(len(original)))
		n, err := lz4.CompressBlock(original, dst, nil)
		if err != nil {
			t.Fatalf("lz4.CompressBlock failed: %v", err)
		}
		compressed := dst[:n]

		// Build mozlz4 payload: 8-byte magic + 4-byte LE uint32 size + compressed data.
		magic := []byte("mozLz40\x00")
		sizeBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(sizeBytes, uint32(len(original)))

		payload := make([]byte, 0, len(magic)+len(sizeBytes)+len(compressed))
		payload = append(payload, magic...)
		payload = append(payload, sizeBytes...)
		payload = append(payload, compressed...)

		result, err := DecompressMozLz4(payload)
		if err != nil {
			t.Fatalf("DecompressMozLz4 returned error: %v", err)
		}
		if string(result) != string(original) {
			t.Errorf("expected %q, got %q", string(original), string(result))
		}
	})

	t.Run("invalid header returns error", func(t *testing.T) {
		// Wrong magic bytes.
		bad := []byte("BADMAGIC\x00\x00\x00\x00some data here")
		_, err := DecompressMozLz4(bad)
		if err == nil {
			t.Fatal("expected error for invalid header, got nil")
		}
	})

	t.Run("too short data returns error", func(t *testing.T) {
		short := []byte("mozLz40")
		_, err := DecompressMozLz4(short)
		if err == nil {
			t.Fatal("expected error for too-short data, got nil")
		}
	})
}

func TestParseSession(t *testing.T) {
	data := []byte(`{
		"selectedWindow": 2,
		"windows": [
			{"tabs": [
				{"entries": [{"url": "https://old.example/", "title": "Old"}, {"url": "https://example.com/", "title": "Example"}], "index": 2},
				{"entries": [{"url": "https://a.com/", "title": "A"}], "index": 0}
			]},
			{"tabs": [
				{"entries": [{"url": "http://localhost:3000/", "title": "Dev"}], "index": 1},
				{"entries": []}
			]}
		]
	}`)

	windows, err := ParseSession(data)
	if err != nil {
		t.Fatalf("ParseSession returned error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}

	w1, w2 := windows[0], windows[1]
	if w1.ID != 1 || w2.ID != 2 {
		t.Errorf("window IDs = %d, %d; want 1, 2", w1.ID, w2.ID)
	}
	if w1.Focused || !w2.Focused {
		t.Errorf("selectedWindow 2 should mark only the second window focused")
	}

	if got := w1.Tabs[0].URL; got != "https://example.com/" {
		t.Errorf("current entry: got %q", got)
	}
	if got := w1.Tabs[1].URL; got != "https://a.com/" {
		t.Errorf("out-of-range index should fall back to last entry, got %q", got)
	}
	if w2.Tabs[1].URL != "" {
		t.Errorf("tab without entries should have empty URL, got %q", w2.Tabs[1].URL)
	}

	wantIDs := []int{1, 2, 3, 4}
	var gotIDs []int
	for _, w := range windows {
		for i, tab := range w.Tabs {
			gotIDs = append(gotIDs, tab.ID)
			if tab.WindowID != w.ID || tab.Index != i {
				t.Errorf("tab %d: WindowID=%d Index=%d", tab.ID, tab.WindowID, tab.Index)
			}
		}
	}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("tab IDs = %v, want %v", gotIDs, wantIDs)
		}
	}
}

func TestParseSessionInvalidJSON(t *testing.T) {
	if _, err := ParseSession([]byte("{")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
