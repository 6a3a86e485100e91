package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/consolidate/consolidatetest"
	"github.com/lotas/mergewin/internal/types"
)

// fakeExtension answers bridge commands from an in-memory host, the way the
// WebExtension answers them from the browser APIs.
func fakeExtension(ctx context.Context, conn *websocket.Conn, host *consolidatetest.FakeHost, notes chan<- OutgoingMsg) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd OutgoingMsg
		if err := json.Unmarshal(data, &cmd); err != nil {
			return
		}

		resp := IncomingMsg{ID: cmd.ID}
		switch cmd.Action {
		case "windows.getAll":
			var ws []*types.Window
			ws, err = host.Windows(ctx)
			resp.Windows = encodeWindows(ws)
		case "tabs.remove":
			err = host.RemoveTabs(ctx, cmd.TabIDs)
		case "tabs.move":
			index := -1
			if cmd.Index != nil {
				index = *cmd.Index
			}
			err = host.MoveTabs(ctx, cmd.TabIDs, cmd.WindowID, index)
		case "windows.remove":
			err = host.RemoveWindow(ctx, cmd.WindowID)
		case "tabs.query":
			var tabs []*types.Tab
			tabs, err = host.QueryTabs(ctx, cmd.WindowID)
			resp.Tabs = encodeTabs(tabs)
		case "notify":
			notes <- cmd
		default:
			err = fmt.Errorf("unknown action %q", cmd.Action)
		}

		ok := err == nil
		resp.OK = &ok
		if errors.Is(err, consolidate.ErrWindowNotFound) {
			resp.Error = fmt.Sprintf("No window with id: %d.", cmd.WindowID)
		} else if err != nil {
			resp.Error = err.Error()
		}
		out, _ := json.Marshal(resp)
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

func encodeTabs(tabs []*types.Tab) json.RawMessage {
	wts := make([]wireTab, 0, len(tabs))
	for _, t := range tabs {
		wts = append(wts, wireTab{ID: t.ID, URL: t.URL, Title: t.Title, WindowID: t.WindowID, Index: t.Index})
	}
	data, _ := json.Marshal(wts)
	return data
}

func encodeWindows(windows []*types.Window) json.RawMessage {
	wws := make([]wireWindow, 0, len(windows))
	for _, w := range windows {
		ww := wireWindow{ID: w.ID, Focused: w.Focused, Type: "normal"}
		for _, t := range w.Tabs {
			ww.Tabs = append(ww.Tabs, wireTab{ID: t.ID, URL: t.URL, Title: t.Title, WindowID: t.WindowID, Index: t.Index})
		}
		wws = append(wws, ww)
	}
	data, _ := json.Marshal(wws)
	return data
}

func TestBridgeRunsConsolidation(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dialServer(t, ctx, srv)

	host := consolidatetest.New(
		consolidatetest.Win(1, true, 10, "https://a.com/x", "https://youtube.com/"),
		consolidatetest.Win(2, false, 20, "https://a.com/x?ref=1", "https://b.com"),
	)
	notes := make(chan OutgoingMsg, 1)
	go fakeExtension(ctx, conn, host, notes)

	bridge := NewBridge(srv)
	if err := bridge.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}

	report, err := consolidate.Run(ctx, bridge, bridge, consolidate.DefaultConfig())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Moved != 1 || report.Closed != 2 || report.WindowsRemoved != 1 {
		t.Errorf("report = %+v", report)
	}

	select {
	case note := <-notes:
		if note.Message != "Merged 1 tab(s), closed 2 tab(s)." || note.Status != "success" {
			t.Errorf("notification = %+v", note)
		}
		if note.Title != consolidate.NotifyTitle {
			t.Errorf("title = %q", note.Title)
		}
	case <-ctx.Done():
		t.Fatal("no notification received")
	}

	moves := host.CallsTo("MoveTabs")
	if len(moves) != 1 || moves[0].Index != -1 || moves[0].WindowID != 1 {
		t.Errorf("moves = %+v", moves)
	}
}

func TestBridgeMapsMissingWindow(t *testing.T) {
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _ := dialServer(t, ctx, srv)
	go fakeExtension(ctx, conn, consolidatetest.New(), make(chan OutgoingMsg, 1))

	err := NewBridge(srv).RemoveWindow(ctx, 99)
	if !errors.Is(err, consolidate.ErrWindowNotFound) {
		t.Fatalf("err = %v, want ErrWindowNotFound", err)
	}
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Action != "windows.remove" {
		t.Errorf("expected wrapped CommandError, got %v", err)
	}
}
