package duplicate

import (
	"context"
	"fmt"
	"time"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

// DefaultWindow is how far back an equivalent transfer counts as a duplicate
const DefaultWindow = 5 * time.Minute

// Guard rejects a transfer when an equivalent one (same sender, receiver,
// amount and type, any status) was created within Window.
type Guard struct {
	Ledger domain.LedgerStore
	Window time.Duration
}

// NewGuard creates a Guard with the default window
func NewGuard(ledger domain.LedgerStore) *Guard {
	return &Guard{
		Ledger: ledger,
		Window: DefaultWindow,
	}
}

// Check returns ErrDuplicateTransaction if an equivalent transfer was
// created in [at-Window, at]. at must come from the same clock that stamps
// records' CreatedAt.
func (g *Guard) Check(ctx context.Context, q domain.SimilarTransferQuery, at time.Time) error {
	window := g.Window
	if window <= 0 {
		window = DefaultWindow
	}

	exists, err := g.Ledger.ExistsSimilarSince(ctx, q, at.Add(-window))
	if err != nil {
		return fmt.Errorf("failed to check for duplicate transfer: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s to account %d was already requested in the last %s",
			domain.ErrDuplicateTransaction, q.Amount.StringFixed(2), q.ReceiverID, window)
	}
	return nil
}
