package pipeline

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/solfolio/backend/internal/domain"
)

// Position is an in-memory PnL aggregate for one wallet/mint pair.
type Position struct {
	Mint      string    `json:"mint"`
	PnL       float64   `json:"pnl"`
	Updates   int       `json:"updates"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PositionBook holds per-wallet position aggregates. Writes come from the
// per-wallet handler; reads from the portfolio endpoint. Events for one
// wallet are applied sequentially (the batcher schedules at most one task
// per wallet), so the lock only guards cross-wallet access.
type PositionBook struct {
	mu       sync.RWMutex
	byWallet map[string]map[string]*Position
}

// NewPositionBook creates an empty PositionBook.
func NewPositionBook() *PositionBook {
	return &PositionBook{byWallet: make(map[string]map[string]*Position)}
}

// ApplyUpdate folds a position update into the aggregate and returns the
// resulting total PnL for the position. Accumulation saturates: a
// non-finite sum leaves the stored PnL at the nearest finite bound.
func (b *PositionBook) ApplyUpdate(ev domain.PositionUpdate) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions, ok := b.byWallet[ev.WalletID]
	if !ok {
		positions = make(map[string]*Position)
		b.byWallet[ev.WalletID] = positions
	}

	pos, ok := positions[ev.Mint]
	if !ok {
		pos = &Position{Mint: ev.Mint}
		positions[ev.Mint] = pos
	}

	sum := pos.PnL + ev.PnLDelta
	if math.IsInf(sum, 1) || (math.IsNaN(sum) && ev.PnLDelta > 0) {
		sum = math.MaxFloat64
	} else if math.IsInf(sum, -1) || math.IsNaN(sum) {
		sum = -math.MaxFloat64
	}
	pos.PnL = sum
	pos.Updates++
	pos.UpdatedAt = ev.TS

	return pos.PnL
}

// Positions returns the wallet's aggregates sorted by mint. The result is
// a copy.
func (b *PositionBook) Positions(wallet string) []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	positions := b.byWallet[wallet]
	out := make([]Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out
}

// TotalPnL returns the sum of the wallet's position PnLs.
func (b *PositionBook) TotalPnL(wallet string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total float64
	for _, pos := range b.byWallet[wallet] {
		total += pos.PnL
	}
	return total
}

// Wallets returns the number of wallets with at least one position.
func (b *PositionBook) Wallets() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byWallet)
}
