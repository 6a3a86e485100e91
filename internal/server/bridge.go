package server

import (
	"context"
	"errors"
	"strings"

	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/types"
)

// Bridge drives the browser through the connected extension. It implements
// consolidate.Host and consolidate.Reporter.
type Bridge struct {
	srv *Server
}

// NewBridge wraps srv.
func NewBridge(srv *Server) *Bridge {
	return &Bridge{srv: srv}
}

// WaitReady blocks until the extension connects.
func (b *Bridge) WaitReady(ctx context.Context) error {
	return b.srv.WaitConnected(ctx)
}

func (b *Bridge) Windows(ctx context.Context) ([]*types.Window, error) {
	resp, err := b.srv.Request(ctx, OutgoingMsg{Action: "windows.getAll", Populate: true})
	if err != nil {
		return nil, mapErr(err)
	}
	return ParseWindows(resp.Windows)
}

func (b *Bridge) RemoveTabs(ctx context.Context, tabIDs []int) error {
	_, err := b.srv.Request(ctx, OutgoingMsg{Action: "tabs.remove", TabIDs: tabIDs})
	return mapErr(err)
}

func (b *Bridge) MoveTabs(ctx context.Context, tabIDs []int, windowID, index int) error {
	_, err := b.srv.Request(ctx, OutgoingMsg{
		Action:   "tabs.move",
		TabIDs:   tabIDs,
		WindowID: windowID,
		Index:    &index,
	})
	return mapErr(err)
}

func (b *Bridge) RemoveWindow(ctx context.Context, windowID int) error {
	_, err := b.srv.Request(ctx, OutgoingMsg{Action: "windows.remove", WindowID: windowID})
	return mapErr(err)
}

func (b *Bridge) QueryTabs(ctx context.Context, windowID int) ([]*types.Tab, error) {
	resp, err := b.srv.Request(ctx, OutgoingMsg{Action: "tabs.query", WindowID: windowID})
	if err != nil {
		return nil, mapErr(err)
	}
	return ParseTabs(resp.Tabs)
}

// Notify shows a browser notification through the extension.
func (b *Bridge) Notify(ctx context.Context, st consolidate.Status) error {
	status := "success"
	if st.IsError {
		status = "error"
	}
	_, err := b.srv.Request(ctx, OutgoingMsg{
		Action:  "notify",
		Title:   st.Title,
		Message: st.Message,
		Status:  status,
	})
	return err
}

// windowGone wraps a CommandError about a vanished window so that
// errors.Is(err, consolidate.ErrWindowNotFound) holds.
type windowGone struct {
	*CommandError
}

func (w windowGone) Unwrap() []error {
	return []error{w.CommandError, consolidate.ErrWindowNotFound}
}

func mapErr(err error) error {
	var ce *CommandError
	if errors.As(err, &ce) && strings.Contains(strings.ToLower(ce.Message), "no window with id") {
		return windowGone{ce}
	}
	return err
}
