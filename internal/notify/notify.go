package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lotas/mergewin/internal/consolidate"
)

// Send posts message to an ntfy topic URL.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string, isError bool) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if isError {
		req.Header.Set("Priority", "high")
		req.Header.Set("Tags", "warning")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Ntfy is a Reporter that pushes to an ntfy topic.
type Ntfy struct {
	Endpoint string
	Client   *http.Client
}

func (n Ntfy) Notify(ctx context.Context, st consolidate.Status) error {
	return Send(ctx, n.Client, n.Endpoint, st.Title, st.Message, st.IsError)
}

// Writer is a Reporter that prints the message, e.g. to stderr.
type Writer struct {
	W io.Writer
}

func (w Writer) Notify(ctx context.Context, st consolidate.Status) error {
	_, err := fmt.Fprintln(w.W, st.Message)
	return err
}

// Multi fans a Status out to every reporter and joins their errors.
type Multi []consolidate.Reporter

func (m Multi) Notify(ctx context.Context, st consolidate.Status) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Notify(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
