package firefox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/lotas/mergewin/internal/types"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(mozLz4Magic)], mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])

	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}

	return dst[:n], nil
}

// Raw JSON types for Firefox session file parsing.
type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries []rawEntry `json:"entries"`
	Index   int        `json:"index"`
}

type rawWindow struct {
	Tabs []rawTab `json:"tabs"`
}

type rawSession struct {
	Windows        []rawWindow `json:"windows"`
	SelectedWindow int         `json:"selectedWindow"` // 1-based
}

// ParseSession converts session JSON into windows. Session files carry no
// live IDs, so windows are numbered from 1 and tabs get sequential IDs
// across the whole session. The selected window is marked focused.
func ParseSession(data []byte) ([]*types.Window, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	nextTabID := 1
	windows := make([]*types.Window, 0, len(raw.Windows))
	for winIdx, rw := range raw.Windows {
		w := &types.Window{
			ID:      winIdx + 1,
			Focused: raw.SelectedWindow == winIdx+1,
		}
		for _, rt := range rw.Tabs {
			tab := &types.Tab{
				ID:       nextTabID,
				WindowID: w.ID,
				Index:    len(w.Tabs),
			}
			nextTabID++
			if len(rt.Entries) > 0 {
				// index is 1-based; current page is entries[index-1].
				entryIdx := rt.Index - 1
				if entryIdx < 0 || entryIdx >= len(rt.Entries) {
					entryIdx = len(rt.Entries) - 1
				}
				tab.URL = rt.Entries[entryIdx].URL
				tab.Title = rt.Entries[entryIdx].Title
			}
			w.Tabs = append(w.Tabs, tab)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// ReadSessionFile reads the windows of a profile's session.
// It tries recovery.jsonlz4 first (active session), then previous.jsonlz4 (last closed session).
func ReadSessionFile(profileDir string) ([]*types.Window, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range sessionFiles {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}

	return ParseSession(decompressed)
}
