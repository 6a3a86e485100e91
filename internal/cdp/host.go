// Package cdp drives a Chromium browser over the DevTools protocol so the
// consolidator can run without the extension installed.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	cdproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/lotas/mergewin/internal/applog"
	"github.com/lotas/mergewin/internal/consolidate"
	"github.com/lotas/mergewin/internal/types"
)

// ErrMoveUnsupported is returned when a tab cannot be placed in the
// requested window.
var ErrMoveUnsupported = errors.New("cdp: moving tabs between windows is not supported")

// driver is the subset of DevTools calls the Host needs.
type driver interface {
	Targets(ctx context.Context) ([]*target.Info, error)
	WindowFor(ctx context.Context, id target.ID) (int, error)
	Activate(ctx context.Context, id target.ID) error
	Open(ctx context.Context, url string) (target.ID, error)
	Close(ctx context.Context, id target.ID) error
}

// Host implements consolidate.Host on top of page targets. Windows are the
// browser's window IDs; tab IDs are assigned per target and stay stable for
// the lifetime of the Host.
type Host struct {
	drv driver

	mu      sync.Mutex
	byID    map[int]target.ID
	byTgt   map[target.ID]int
	nextID  int
	cancels []context.CancelFunc
}

var _ consolidate.Host = (*Host)(nil)

// New connects to the DevTools endpoint at url (e.g. http://127.0.0.1:9222).
// Call Close when done.
func New(url string) *Host {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), url)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	h := newHost(&chromedpDriver{ctx: browserCtx})
	h.cancels = []context.CancelFunc{browserCancel, allocCancel}
	return h
}

func newHost(drv driver) *Host {
	return &Host{
		drv:    drv,
		byID:   make(map[int]target.ID),
		byTgt:  make(map[target.ID]int),
		nextID: 1,
	}
}

// WaitReady connects to the browser without opening a tab.
func (h *Host) WaitReady(ctx context.Context) error {
	if _, err := h.drv.Targets(ctx); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	return nil
}

// Close drops the browser connection. The browser keeps running.
func (h *Host) Close() {
	for _, cancel := range h.cancels {
		cancel()
	}
}

func (h *Host) tabID(id target.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.byTgt[id]; ok {
		return n
	}
	n := h.nextID
	h.nextID++
	h.byTgt[id] = n
	h.byID[n] = id
	return n
}

func (h *Host) targetID(tabID int) (target.ID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.byID[tabID]
	return id, ok
}

func (h *Host) forget(tabID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byTgt, h.byID[tabID])
	delete(h.byID, tabID)
}

// Windows groups page targets by browser window. DevTools lists targets most
// recently used first, so the window of the first page is reported as
// focused.
func (h *Host) Windows(ctx context.Context) ([]*types.Window, error) {
	infos, err := h.drv.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	byWindow := make(map[int]*types.Window)
	var order []int
	for _, info := range infos {
		if info.Type != "page" || info.Subtype != "" {
			continue
		}
		winID, err := h.drv.WindowFor(ctx, info.TargetID)
		if err != nil {
			// Target closed while we were listing.
			applog.Warn("cdp.window_for", err, "target", string(info.TargetID))
			continue
		}
		w, ok := byWindow[winID]
		if !ok {
			w = &types.Window{ID: winID, Focused: len(order) == 0}
			byWindow[winID] = w
			order = append(order, winID)
		}
		w.Tabs = append(w.Tabs, &types.Tab{
			ID:       h.tabID(info.TargetID),
			URL:      info.URL,
			Title:    info.Title,
			WindowID: winID,
			Index:    len(w.Tabs),
		})
	}

	sort.Ints(order)
	windows := make([]*types.Window, 0, len(order))
	for _, id := range order {
		windows = append(windows, byWindow[id])
	}
	return windows, nil
}

// RemoveTabs closes every tab, continuing past failures and joining them.
func (h *Host) RemoveTabs(ctx context.Context, tabIDs []int) error {
	var errs []error
	for _, id := range tabIDs {
		tgt, ok := h.targetID(id)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown tab %d", id))
			continue
		}
		if err := h.drv.Close(ctx, tgt); err != nil {
			errs = append(errs, fmt.Errorf("close tab %d: %w", id, err))
			continue
		}
		h.forget(id)
	}
	return errors.Join(errs...)
}

// MoveTabs reopens each tab's address in windowID and closes the original.
// Page history does not survive the move. Only appending is supported.
func (h *Host) MoveTabs(ctx context.Context, tabIDs []int, windowID, index int) error {
	if index != consolidate.AppendIndex {
		return ErrMoveUnsupported
	}
	tabs, err := h.QueryTabs(ctx, windowID)
	if err != nil {
		return err
	}
	if len(tabs) == 0 {
		return ErrMoveUnsupported
	}
	anchor, _ := h.targetID(tabs[0].ID)

	urls := make(map[target.ID]string)
	infos, err := h.drv.Targets(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	for _, info := range infos {
		urls[info.TargetID] = info.URL
	}

	var errs []error
	for _, id := range tabIDs {
		tgt, ok := h.targetID(id)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown tab %d", id))
			continue
		}
		if err := h.drv.Activate(ctx, anchor); err != nil {
			errs = append(errs, fmt.Errorf("activate window %d: %w", windowID, err))
			break
		}
		opened, err := h.drv.Open(ctx, urls[tgt])
		if err != nil {
			errs = append(errs, fmt.Errorf("reopen tab %d: %w", id, err))
			continue
		}
		if got, err := h.drv.WindowFor(ctx, opened); err != nil || got != windowID {
			_ = h.drv.Close(ctx, opened)
			errs = append(errs, fmt.Errorf("tab %d: %w", id, ErrMoveUnsupported))
			continue
		}
		if err := h.drv.Close(ctx, tgt); err != nil {
			errs = append(errs, fmt.Errorf("close moved tab %d: %w", id, err))
			continue
		}
		h.forget(id)
	}
	return errors.Join(errs...)
}

// RemoveWindow closes all tabs of windowID, which closes the window.
func (h *Host) RemoveWindow(ctx context.Context, windowID int) error {
	windows, err := h.Windows(ctx)
	if err != nil {
		return err
	}
	for _, w := range windows {
		if w.ID != windowID {
			continue
		}
		ids := make([]int, 0, len(w.Tabs))
		for _, t := range w.Tabs {
			ids = append(ids, t.ID)
		}
		return h.RemoveTabs(ctx, ids)
	}
	return fmt.Errorf("window %d: %w", windowID, consolidate.ErrWindowNotFound)
}

// QueryTabs returns the tabs of windowID. A window without page targets no
// longer exists as far as DevTools is concerned.
func (h *Host) QueryTabs(ctx context.Context, windowID int) ([]*types.Tab, error) {
	windows, err := h.Windows(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if w.ID == windowID {
			return w.Tabs, nil
		}
	}
	return nil, fmt.Errorf("window %d: %w", windowID, consolidate.ErrWindowNotFound)
}

// chromedpDriver issues browser-level commands on the connection owned by ctx.
type chromedpDriver struct {
	ctx context.Context
}

// exec binds the caller's ctx to the browser connection. chromedp.Targets
// allocates the browser on first use without attaching to a page.
func (d *chromedpDriver) exec(ctx context.Context) (context.Context, error) {
	c := chromedp.FromContext(d.ctx)
	if c == nil {
		return nil, chromedp.ErrInvalidContext
	}
	if c.Browser == nil {
		if _, err := chromedp.Targets(d.ctx); err != nil {
			return nil, err
		}
	}
	return cdproto.WithExecutor(ctx, c.Browser), nil
}

func (d *chromedpDriver) Targets(ctx context.Context) ([]*target.Info, error) {
	ectx, err := d.exec(ctx)
	if err != nil {
		return nil, err
	}
	return target.GetTargets().Do(ectx)
}

func (d *chromedpDriver) WindowFor(ctx context.Context, id target.ID) (int, error) {
	ectx, err := d.exec(ctx)
	if err != nil {
		return 0, err
	}
	winID, _, err := browser.GetWindowForTarget().WithTargetID(id).Do(ectx)
	if err != nil {
		return 0, err
	}
	return int(winID), nil
}

func (d *chromedpDriver) Activate(ctx context.Context, id target.ID) error {
	ectx, err := d.exec(ctx)
	if err != nil {
		return err
	}
	return target.ActivateTarget(id).Do(ectx)
}

func (d *chromedpDriver) Open(ctx context.Context, url string) (target.ID, error) {
	ectx, err := d.exec(ctx)
	if err != nil {
		return "", err
	}
	return target.CreateTarget(url).Do(ectx)
}

func (d *chromedpDriver) Close(ctx context.Context, id target.ID) error {
	ectx, err := d.exec(ctx)
	if err != nil {
		return err
	}
	return target.CloseTarget(id).Do(ectx)
}
