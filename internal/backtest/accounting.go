package backtest

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/idhash"
	"rabbit-quant/internal/simulation"
)

// Accounting errors.
var (
	ErrShapeMismatch  = errors.New("matrix shape mismatch")
	ErrInvalidCapital = errors.New("initial capital must be positive")
)

// AccountOptions configures portfolio accounting.
type AccountOptions struct {
	InitialCapital float64
	Commission     float64  // fraction of notional, charged on entry and exit
	Timestamps     []int64  // per row, Unix ms; row index when empty
	Symbols        []string // per column; "col<j>" when empty
	RunID          string
}

// Ledger is the result of accounting: the mark-to-market equity per bar and
// the closed trades in exit order.
type Ledger struct {
	Equity []float64
	Trades []*domain.TradeRecord
}

// dustFraction of initial capital is the smallest position worth opening.
const dustFraction = 1e-9

type position struct {
	open      bool
	short     bool
	size      float64
	entry     float64
	value     float64
	fee       float64
	entryTime int64
}

func (p *position) markValue(price float64) float64 {
	if p.short {
		return p.value + p.size*(p.entry-price)
	}
	return p.size * price
}

// Account replays entry and exit signals against a shared cash balance.
//
// On each bar exits are settled before entries. An entry commits
// sizing fraction x current equity, capped at available cash, and pays
// commission on the notional. Shorts reserve their entry value and settle
// size x (entry - exit). Positions still open after the last bar are closed
// at the last price.
func Account(prices simulation.Grid, sig simulation.Signals, sizing simulation.Grid, opts AccountOptions) (*Ledger, error) {
	if !prices.Valid() || !prices.SameShape(sizing) ||
		!prices.Matches(sig.LongEntries) || !prices.Matches(sig.LongExits) ||
		!prices.Matches(sig.ShortEntries) || !prices.Matches(sig.ShortExits) {
		return nil, ErrShapeMismatch
	}
	rows, cols := prices.Rows, prices.Cols
	if len(opts.Timestamps) != 0 && len(opts.Timestamps) != rows {
		return nil, fmt.Errorf("%d timestamps for %d rows: %w", len(opts.Timestamps), rows, ErrShapeMismatch)
	}
	if len(opts.Symbols) != 0 && len(opts.Symbols) != cols {
		return nil, fmt.Errorf("%d symbols for %d columns: %w", len(opts.Symbols), cols, ErrShapeMismatch)
	}
	if opts.InitialCapital <= 0 || math.IsNaN(opts.InitialCapital) {
		return nil, ErrInvalidCapital
	}

	a := &accountant{
		opts:   opts,
		cash:   opts.InitialCapital,
		pos:    make([]position, cols),
		ledger: &Ledger{Equity: make([]float64, rows)},
	}

	for i := 0; i < rows; i++ {
		base := i * cols
		for j := 0; j < cols; j++ {
			k := base + j
			p := &a.pos[j]
			if !p.open {
				continue
			}
			if (!p.short && sig.LongExits.Data[k]) || (p.short && sig.ShortExits.Data[k]) {
				a.close(j, i, prices.Data[k])
			}
		}

		equity := a.equity(prices, base)
		for j := 0; j < cols; j++ {
			k := base + j
			if a.pos[j].open {
				continue
			}
			long, short := sig.LongEntries.Data[k], sig.ShortEntries.Data[k]
			if !long && !short {
				continue
			}
			a.openPosition(j, i, prices.Data[k], sizing.Data[k], equity, short && !long)
		}

		a.ledger.Equity[i] = a.equity(prices, base)
	}

	last := (rows - 1) * cols
	for j := 0; j < cols; j++ {
		if a.pos[j].open {
			a.close(j, rows-1, prices.Data[last+j])
		}
	}
	a.ledger.Equity[rows-1] = a.cash

	return a.ledger, nil
}

type accountant struct {
	opts   AccountOptions
	cash   float64
	pos    []position
	ledger *Ledger
}

func (a *accountant) equity(prices simulation.Grid, base int) float64 {
	eq := a.cash
	for j := range a.pos {
		if a.pos[j].open {
			eq += a.pos[j].markValue(prices.Data[base+j])
		}
	}
	return eq
}

func (a *accountant) openPosition(col, row int, price, fraction, equity float64, short bool) {
	if price <= 0 || math.IsNaN(price) || fraction <= 0 || math.IsNaN(fraction) {
		return
	}
	value := fraction * equity
	if limit := a.cash / (1 + a.opts.Commission); value > limit {
		value = limit
	}
	if value <= dustFraction*a.opts.InitialCapital {
		return
	}
	fee := value * a.opts.Commission
	a.cash -= value + fee
	a.pos[col] = position{
		open:      true,
		short:     short,
		size:      value / price,
		entry:     price,
		value:     value,
		fee:       fee,
		entryTime: a.timeAt(row),
	}
}

func (a *accountant) close(col, row int, price float64) {
	p := &a.pos[col]
	if math.IsNaN(price) {
		price = p.entry
	}
	gross := p.markValue(price)
	exitFee := p.size * price * a.opts.Commission
	a.cash += gross - exitFee

	dir := domain.DirectionLong
	if p.short {
		dir = domain.DirectionShort
	}
	symbol := a.symbol(col)
	pnl := gross - p.value - p.fee - exitFee

	a.ledger.Trades = append(a.ledger.Trades, &domain.TradeRecord{
		TradeID:    idhash.ComputeTradeID(a.opts.RunID, symbol, dir, p.entryTime),
		RunID:      a.opts.RunID,
		Symbol:     symbol,
		Direction:  dir,
		EntryTime:  p.entryTime,
		ExitTime:   a.timeAt(row),
		Size:       p.size,
		EntryPrice: p.entry,
		EntryValue: p.value,
		ExitPrice:  price,
		PnL:        pnl,
		ReturnPct:  pnl / p.value * 100,
		Fees:       p.fee + exitFee,
	})
	*p = position{}
}

func (a *accountant) timeAt(row int) int64 {
	if len(a.opts.Timestamps) == 0 {
		return int64(row)
	}
	return a.opts.Timestamps[row]
}

func (a *accountant) symbol(col int) string {
	if len(a.opts.Symbols) == 0 {
		return "col" + strconv.Itoa(col)
	}
	return a.opts.Symbols[col]
}
