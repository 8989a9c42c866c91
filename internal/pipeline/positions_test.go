package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
)

func positionUpdate(wallet, mint string, delta float64) domain.PositionUpdate {
	return domain.PositionUpdate{
		WalletID: wallet,
		Mint:     mint,
		PnLDelta: delta,
		TS:       time.Now().UTC(),
	}
}

func TestPositionBookAccumulatesPerMint(t *testing.T) {
	book := NewPositionBook()

	require.Equal(t, 10.0, book.ApplyUpdate(positionUpdate("W", "SOL", 10)))
	require.Equal(t, 25.0, book.ApplyUpdate(positionUpdate("W", "SOL", 15)))
	require.Equal(t, 20.0, book.ApplyUpdate(positionUpdate("W", "USDC", -5)))

	positions := book.Positions("W")
	require.Len(t, positions, 2)
	// Sorted by mint for stable API responses.
	require.Equal(t, "SOL", positions[0].Mint)
	require.Equal(t, 25.0, positions[0].PnL)
	require.Equal(t, 2, positions[0].Updates)
	require.Equal(t, "USDC", positions[1].Mint)
	require.Equal(t, -5.0, positions[1].PnL)
}

func TestPositionBookIsolatesWallets(t *testing.T) {
	book := NewPositionBook()

	book.ApplyUpdate(positionUpdate("W", "SOL", 10))
	book.ApplyUpdate(positionUpdate("X", "SOL", -3))

	require.Equal(t, 10.0, book.TotalPnL("W"))
	require.Equal(t, -3.0, book.TotalPnL("X"))
	require.Empty(t, book.Positions("unknown"))
	require.Equal(t, 2, book.Wallets())
}

func TestPositionBookSaturatesOnOverflow(t *testing.T) {
	book := NewPositionBook()

	book.ApplyUpdate(positionUpdate("W", "SOL", math.MaxFloat64))
	total := book.ApplyUpdate(positionUpdate("W", "SOL", math.MaxFloat64))

	// Accumulation saturates instead of going infinite.
	require.Equal(t, math.MaxFloat64, total)
	require.False(t, math.IsInf(book.TotalPnL("W"), 0))
}

func TestPositionBookPositionsReturnsCopy(t *testing.T) {
	book := NewPositionBook()
	book.ApplyUpdate(positionUpdate("W", "SOL", 10))

	positions := book.Positions("W")
	positions[0].PnL = 999

	require.Equal(t, 10.0, book.Positions("W")[0].PnL)
}
