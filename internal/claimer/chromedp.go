package claimer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// Selectors of the site's redemption UI. The tab index and the shadow-rooted
// challenge host are load-bearing; the site does not expose stabler hooks.
const (
	selWalletFunds  = "#walletFunds"
	selPromoTab     = "div.tabs > a:nth-child(7)"
	selPromoInput   = "div.promocode input"
	selPromoButton  = "div.promocode button"
	selToast        = "div.ui-notification"
	selLoggedInNick = ".nick-limited"
	challengeHostID = "recaptcha-promocode"

	// challengeFrameHost identifies the widget's iframe among the page's
	// browser targets.
	challengeFrameHost = "challenges.cloudflare.com"
)

const (
	// challengeDetectWindow bounds how long we watch for the challenge to
	// appear after submit; no challenge within it means none was issued.
	challengeDetectWindow = 3 * time.Second

	// challengeSettleDelay gives the widget time to register the keyboard
	// activation before the result is read.
	challengeSettleDelay = 2 * time.Second

	pollInterval = 250 * time.Millisecond
)

// balancePattern matches the displayed wallet amount, e.g. "$ 12.34".
var balancePattern = regexp.MustCompile(`(\d+)[.,](\d{2})`)

// errNoToast is returned when the result notification never appeared.
var errNoToast = errors.New("no result notification appeared")

// errNoChallengeFrame is returned while the widget's iframe target has not
// attached yet.
var errNoChallengeFrame = errors.New("challenge frame not attached")

// chromeDriver drives a headless Chrome through the redemption UI.
type chromeDriver struct {
	browserCtx context.Context
	cancels    []context.CancelFunc

	cfg      config.ClaimConfig
	sessions *SessionStore
	log      logger.Interface

	// persistOnClose is set once a stored session has been restored into
	// the browser; anonymous runs never overwrite the stored cookies.
	persistOnClose bool
}

func newChromeDriver(ctx context.Context, cfg config.ClaimConfig, sessions *SessionStore, log logger.Interface) (*chromeDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(1280, 960),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	d := &chromeDriver{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{browserCancel, allocCancel},
		cfg:        cfg,
		sessions:   sessions,
		log:        log.WithComponent("claimer.browser"),
	}

	// Starts the browser eagerly so a missing binary fails here, not
	// mid-ritual.
	if err := chromedp.Run(browserCtx); err != nil {
		d.teardown()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return d, nil
}

// run executes chromedp actions against the page, aborting when the
// caller's step context expires.
func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	return d.runIn(d.browserCtx, ctx, actions...)
}

// runIn is run against an explicit chromedp context, so actions can target
// a child frame instead of the page.
func (d *chromeDriver) runIn(base, ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(base)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// RestoreSession installs persisted cookies and opens the site.
func (d *chromeDriver) RestoreSession(ctx context.Context) error {
	cookies, err := d.sessions.Load()
	if err != nil {
		return err
	}

	actions := []chromedp.Action{}
	if len(cookies) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(runCtx context.Context) error {
			for _, c := range cookies {
				if setErr := cookieParam(c).Do(runCtx); setErr != nil {
					return fmt.Errorf("failed to set cookie %s: %w", c.Name, setErr)
				}
			}
			return nil
		}))
	}

	actions = append(actions,
		chromedp.Navigate(d.cfg.SiteURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err := d.run(ctx, actions...); err != nil {
		return err
	}

	d.persistOnClose = len(cookies) > 0
	return nil
}

// cookieParam builds the install request for one persisted cookie. A
// negative expiry marks a session cookie, which is installed without one.
func cookieParam(c Cookie) *network.SetCookieParams {
	p := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(c.Path).
		WithHTTPOnly(c.HTTPOnly).
		WithSecure(c.Secure)
	if c.Expires > 0 {
		expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
		p = p.WithExpires(&expires)
	}
	return p
}

// OpenWalletPanel clicks the wallet funds display, which opens the panel.
func (d *chromeDriver) OpenWalletPanel(ctx context.Context) error {
	return d.run(ctx,
		chromedp.WaitVisible(selWalletFunds, chromedp.ByQuery),
		chromedp.Click(selWalletFunds, chromedp.ByQuery),
	)
}

// SelectPromocodeTab switches the panel to the promocode tab.
func (d *chromeDriver) SelectPromocodeTab(ctx context.Context) error {
	return d.run(ctx,
		chromedp.WaitVisible(selPromoTab, chromedp.ByQuery),
		chromedp.Click(selPromoTab, chromedp.ByQuery),
	)
}

// EnterCode types the code into the redemption input.
func (d *chromeDriver) EnterCode(ctx context.Context, code string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selPromoInput, chromedp.ByQuery),
		chromedp.Clear(selPromoInput, chromedp.ByQuery),
		chromedp.SendKeys(selPromoInput, code, chromedp.ByQuery),
	)
}

// Submit activates the redeem button.
func (d *chromeDriver) Submit(ctx context.Context) error {
	return d.run(ctx, chromedp.Click(selPromoButton, chromedp.ByQuery))
}

// challengeVisibleJS reports whether the challenge host carries a rendered
// iframe. The widget lives in a shadow root, so plain selectors cannot see
// it.
const challengeVisibleJS = `(() => {
	const host = document.getElementById(%q);
	if (!host) return false;
	const root = host.shadowRoot || host;
	return root.querySelector('iframe') !== null;
})()`

// ChallengePresented polls for the anti-bot widget for a short window after
// submit.
func (d *chromeDriver) ChallengePresented(ctx context.Context) (bool, error) {
	script := fmt.Sprintf(challengeVisibleJS, challengeHostID)
	deadline := time.Now().Add(challengeDetectWindow)

	for time.Now().Before(deadline) {
		var visible bool
		if err := d.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
			return false, err
		}
		if visible {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return false, nil
}

// challengeCheckboxJS reports whether the widget's checkbox exists and is
// interactive. It runs inside the widget frame, where the controls sit
// under the frame body's shadow root.
const challengeCheckboxJS = `(() => {
	const root = document.body && document.body.shadowRoot;
	if (!root) return false;
	const box = root.querySelector('input[type="checkbox"]');
	return box !== null && !box.disabled;
})()`

// isChallengeFrame matches the widget's iframe among the browser targets.
func isChallengeFrame(info *target.Info) bool {
	return info.Type == "iframe" && strings.Contains(info.URL, challengeFrameHost)
}

// challengeFrame attaches to the widget's iframe target.
func (d *chromeDriver) challengeFrame() (context.Context, context.CancelFunc, error) {
	infos, err := chromedp.Targets(d.browserCtx)
	if err != nil {
		return nil, nil, err
	}
	for _, info := range infos {
		if isChallengeFrame(info) {
			frameCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(info.TargetID))
			return frameCtx, cancel, nil
		}
	}
	return nil, nil, errNoChallengeFrame
}

// waitChallengeCheckbox blocks until the widget has rendered an interactive
// checkbox inside its frame.
func (d *chromeDriver) waitChallengeCheckbox(ctx context.Context) error {
	for {
		frameCtx, cancel, err := d.challengeFrame()
		switch {
		case err == nil:
			var ready bool
			evalErr := d.runIn(frameCtx, ctx, chromedp.Evaluate(challengeCheckboxJS, &ready))
			cancel()
			if evalErr != nil {
				return evalErr
			}
			if ready {
				return nil
			}
		case !errors.Is(err, errNoChallengeFrame):
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// SolveChallenge activates the challenge checkbox from the keyboard. The
// widget's iframe is cross-origin, so it cannot be clicked through the DOM;
// once its checkbox has rendered, focus is anchored on the code input, a
// Tab walks it onto the checkbox, and Space toggles it, the way a human on
// a keyboard would.
func (d *chromeDriver) SolveChallenge(ctx context.Context) error {
	if err := d.waitChallengeCheckbox(ctx); err != nil {
		return err
	}

	if err := d.run(ctx,
		chromedp.Click(selPromoInput, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Tab),
		chromedp.KeyEvent(" "),
	); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(challengeSettleDelay):
		return nil
	}
}

// toastJS reads the site's result notification once it renders.
const toastJS = `(() => {
	const toast = document.querySelector('div.ui-notification');
	if (!toast) return null;
	return { message: toast.innerText.trim(), success: toast.classList.contains('success') };
})()`

// ReadToast polls for the result notification until the step times out.
func (d *chromeDriver) ReadToast(ctx context.Context) (string, bool, error) {
	for {
		var toast *struct {
			Message string `json:"message"`
			Success bool   `json:"success"`
		}
		if err := d.run(ctx, chromedp.Evaluate(toastJS, &toast)); err != nil {
			return "", false, err
		}
		if toast != nil {
			return toast.Message, toast.Success, nil
		}

		select {
		case <-ctx.Done():
			return "", false, errNoToast
		case <-time.After(pollInterval):
		}
	}
}

// Balance reads the displayed wallet amount in cents.
func (d *chromeDriver) Balance(ctx context.Context) (int64, error) {
	var text string
	if err := d.run(ctx, chromedp.Text(selWalletFunds, &text, chromedp.ByQuery)); err != nil {
		return 0, err
	}
	return parseBalance(text)
}

// Close refreshes the stored session when one was restored into this run,
// then tears the browser down. Runs that started without a stored session
// leave the session file untouched.
func (d *chromeDriver) Close() error {
	if d.persistOnClose {
		if err := d.persistCookies(); err != nil {
			d.log.WithError(err).Warn("could not persist session")
		}
	}

	d.teardown()
	return nil
}

// persistCookies writes the browser's current cookie jar to the session
// store.
func (d *chromeDriver) persistCookies() error {
	saveCtx, cancel := context.WithTimeout(d.browserCtx, 5*time.Second)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(saveCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		var getErr error
		cookies, getErr = storage.GetCookies().Do(runCtx)
		return getErr
	}))
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}
	return d.sessions.Save(toSessionCookies(cookies))
}

func (d *chromeDriver) teardown() {
	for _, cancel := range d.cancels {
		cancel()
	}
}

func toSessionCookies(cookies []*network.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out
}

// parseBalance extracts the amount from the wallet display text.
func parseBalance(text string) (int64, error) {
	match := balancePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, fmt.Errorf("no amount in balance text %q", text)
	}

	whole, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad balance text %q: %w", text, err)
	}
	cents, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad balance text %q: %w", text, err)
	}
	return whole*100 + cents, nil
}

var _ Driver = (*chromeDriver)(nil)
