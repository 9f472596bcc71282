// Package ledger records every promocode the watcher has handled, keyed on
// the post URL that advertised it. The ledger is what makes scrape cycles
// idempotent: a post whose URL is already recorded is never processed twice.
package ledger

import (
	"context"
	"errors"

	"github.com/jonesrussell/promowatch/internal/domain"
)

// ErrDuplicate is returned by Create when the post URL is already recorded.
var ErrDuplicate = errors.New("post already recorded")

// Interface is the promocode ledger.
type Interface interface {
	// ExistsByPostURL reports whether the post URL has been handled.
	ExistsByPostURL(ctx context.Context, postURL string) (bool, error)
	// Create records a handled promocode. Returns ErrDuplicate when another
	// writer recorded the same post URL first.
	Create(ctx context.Context, code *domain.Promocode) error
	// Recent returns the most recently recorded promocodes, newest first.
	Recent(ctx context.Context, limit int) ([]domain.Promocode, error)
	// Close releases the underlying connection pool.
	Close() error
}
