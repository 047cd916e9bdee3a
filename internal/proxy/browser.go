package proxy

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"retarget/linkfix"
)

// Rendered is a page after the page script ran on its live DOM.
type Rendered struct {
	URL        string
	Status     int
	HTML       []byte
	Retargeted int
}

// Renderer loads a page in a real browser and retargets its links there.
type Renderer interface {
	Render(ctx context.Context, target string, hdr http.Header, site linkfix.Site) (*Rendered, error)
	Close()
}

type chromeRenderer struct {
	allocator context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
	timeout   time.Duration
}

// NewChromeRenderer prepares a headless Chrome allocator. Chrome itself is
// started on the first Render.
func NewChromeRenderer(logger *log.Logger, timeout time.Duration) Renderer {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &chromeRenderer{
		allocator: allocCtx,
		cancel:    cancel,
		logger:    logger,
		timeout:   timeout,
	}
}

func (b *chromeRenderer) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *chromeRenderer) Render(ctx context.Context, target string, hdr http.Header, site linkfix.Site) (*Rendered, error) {
	if strings.TrimSpace(target) == "" {
		return nil, linkfix.ErrEmptyTarget
	}
	taskCtx, cancelBrowser := chromedp.NewContext(b.allocator, chromedp.WithLogf(b.logger.Printf))
	defer cancelBrowser()

	// Bind the tab to the caller so an abandoned request closes it.
	if ctx != nil {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithCancel(taskCtx)
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-taskCtx.Done():
			}
		}()
		defer cancel()
	}
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, b.timeout)
	defer cancelTimeout()

	var (
		mu        sync.Mutex
		mainID    network.RequestID
		status    int
		finalURL  string
		outer     string
		retargets int
	)
	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Type == network.ResourceTypeDocument {
				mu.Lock()
				if mainID == "" {
					mainID = e.RequestID
				}
				mu.Unlock()
			}
		case *network.EventResponseReceived:
			mu.Lock()
			if e.RequestID == mainID && e.Response != nil {
				status = int(e.Response.Status)
			}
			mu.Unlock()
		}
	})

	headers := hdr.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	actions := []chromedp.Action{network.Enable()}
	if ua := headers.Get("User-Agent"); ua != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}))
		headers.Del("User-Agent")
	}
	if len(headers) > 0 {
		extra := network.Headers{}
		for k, vs := range headers {
			if len(vs) == 0 || strings.EqualFold(k, "Content-Length") {
				continue
			}
			extra[http.CanonicalHeaderKey(k)] = strings.Join(vs, ", ")
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(extra).Do(ctx)
		}))
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(linkfix.Script(site), &retargets),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &outer, chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp: %w", err)
	}
	if finalURL == "" {
		finalURL = target
	}
	mu.Lock()
	defer mu.Unlock()
	b.logger.Printf("BROWSER %s status=%d retargeted=%d bytes=%d", finalURL, status, retargets, len(outer))
	return &Rendered{
		URL:        finalURL,
		Status:     status,
		HTML:       []byte("<!DOCTYPE html>\n" + outer),
		Retargeted: retargets,
	}, nil
}
