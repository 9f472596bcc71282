package claimer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// loginTimeout bounds the manual login flow in the opened window.
const loginTimeout = 5 * time.Minute

// Login opens a visible browser on the site and waits for the operator to
// complete the site's own login flow, then persists the cookies for the
// claim runs to restore. It returns the logged-in account's display name.
func Login(ctx context.Context, cfg config.ClaimConfig, sessions *SessionStore, log logger.Interface) (string, error) {
	d, err := newChromeDriver(ctx, visibleConfig(cfg), sessions, log)
	if err != nil {
		return "", fmt.Errorf("failed to start browser: %w", err)
	}
	defer d.teardown()

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	log.Info("complete the login in the opened browser window")

	var nick string
	err = d.run(waitCtx,
		chromedp.Navigate(cfg.SiteURL),
		chromedp.WaitVisible(selLoggedInNick, chromedp.ByQuery),
		chromedp.Text(selLoggedInNick, &nick, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("login not completed: %w", err)
	}

	if err := d.persistCookies(); err != nil {
		return "", fmt.Errorf("could not persist session: %w", err)
	}
	return nick, nil
}

// visibleConfig forces a headed browser; the operator has to see the login
// page to complete it.
func visibleConfig(cfg config.ClaimConfig) config.ClaimConfig {
	cfg.Headless = false
	return cfg
}
