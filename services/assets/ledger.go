package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crowdsale/crypto"
	"crowdsale/native/crowdsale"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the holding.
	ErrInsufficientBalance = errors.New("assets: insufficient balance")
	// ErrSymbolLocked is returned when a locked symbol is transferred.
	ErrSymbolLocked = errors.New("assets: symbol locked")
	// ErrUnknownEffect is returned for an effect kind the ledger cannot apply.
	ErrUnknownEffect = errors.New("assets: unknown effect kind")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("assets: invalid amount")
)

// Ledger is the reference custody ledger for the base currency and the sale
// unit. Effects are applied at most once, keyed by their idempotency key.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn. DSNs that look like postgres URLs or keyword strings
// use the postgres driver; anything else is treated as a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("assets: dsn required")
	}
	var dialector gorm.Dialector
	if isPostgresDSN(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("assets: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("assets: migrate: %w", err)
	}
	return db, nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// NewLedger wraps a migrated database handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// RegisterSymbol declares a symbol and its initial lock state. Registering an
// existing symbol leaves its lock untouched.
func (l *Ledger) RegisterSymbol(ctx context.Context, unit crowdsale.Unit, locked bool) error {
	state := SymbolState{Symbol: unit.Code, Decimals: unit.Decimals, Locked: locked, UpdatedAt: l.now()}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error
}

// Credit adds amount of unit to account outside the effect pipeline. The base
// asset service uses it to book incoming contributions.
func (l *Ledger) Credit(ctx context.Context, account [20]byte, amount crowdsale.Quantity) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.adjust(tx, crypto.FormatAccount(account), amount.Unit.Code, amount.Amount)
	})
}

// Apply books effect. It reports false when the effect key was applied
// before, in which case nothing changes.
func (l *Ledger) Apply(ctx context.Context, effect crowdsale.Effect) (bool, error) {
	if effect.Key == "" {
		return false, fmt.Errorf("assets: effect key required")
	}
	applied := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing AppliedEffect
		err := tx.Where("effect_key = ?", effect.Key).Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		symbol := effect.Quantity.Unit.Code
		from := crypto.FormatAccount(effect.From)
		to := crypto.FormatAccount(effect.To)
		switch effect.Kind {
		case crowdsale.EffectTransfer:
			locked, err := symbolLocked(tx, symbol)
			if err != nil {
				return err
			}
			if locked {
				return ErrSymbolLocked
			}
			if err := l.adjust(tx, from, symbol, new(big.Int).Neg(amountOf(effect.Quantity))); err != nil {
				return err
			}
			if err := l.adjust(tx, to, symbol, amountOf(effect.Quantity)); err != nil {
				return err
			}
		case crowdsale.EffectIssue, crowdsale.EffectDeposit:
			if err := l.adjust(tx, to, symbol, amountOf(effect.Quantity)); err != nil {
				return err
			}
		case crowdsale.EffectUnlock:
			state := SymbolState{Symbol: symbol, Decimals: effect.Quantity.Unit.Decimals, Locked: false, UpdatedAt: l.now()}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}},
				DoUpdates: clause.AssignmentColumns([]string{"locked", "updated_at"}),
			}).Create(&state).Error; err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownEffect, effect.Kind)
		}

		record := AppliedEffect{
			EffectKey: effect.Key,
			Kind:      string(effect.Kind),
			Sender:    from,
			Recipient: to,
			Symbol:    symbol,
			Amount:    amountOf(effect.Quantity).String(),
			Memo:      effect.Memo,
			CreatedAt: l.now(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Transfer moves a holding between accounts on behalf of a holder. Locked
// symbols cannot move.
func (l *Ledger) Transfer(ctx context.Context, from, to [20]byte, amount crowdsale.Quantity) error {
	if amount.Amount == nil || amount.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := symbolLocked(tx, amount.Unit.Code)
		if err != nil {
			return err
		}
		if locked {
			return ErrSymbolLocked
		}
		if err := l.adjust(tx, crypto.FormatAccount(from), amount.Unit.Code, new(big.Int).Neg(amount.Amount)); err != nil {
			return err
		}
		return l.adjust(tx, crypto.FormatAccount(to), amount.Unit.Code, amount.Amount)
	})
}

// Balance returns the holding of account in symbol, zero when unknown.
func (l *Ledger) Balance(ctx context.Context, account [20]byte, symbol string) (*big.Int, error) {
	var row Balance
	err := l.db.WithContext(ctx).
		Where("account = ? AND symbol = ?", crypto.FormatAccount(account), symbol).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(row.Amount)
}

// Locked reports whether symbol is frozen.
func (l *Ledger) Locked(ctx context.Context, symbol string) (bool, error) {
	return symbolLocked(l.db.WithContext(ctx), symbol)
}

// Applied reports whether the effect key has been booked.
func (l *Ledger) Applied(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&AppliedEffect{}).Where("effect_key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func symbolLocked(tx *gorm.DB, symbol string) (bool, error) {
	var state SymbolState
	err := tx.Where("symbol = ?", symbol).Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state.Locked, nil
}

// adjust applies delta to a balance row inside tx, creating it on first use.
func (l *Ledger) adjust(tx *gorm.DB, account, symbol string, delta *big.Int) error {
	if delta == nil {
		return ErrInvalidAmount
	}
	var row Balance
	err := tx.Where("account = ? AND symbol = ?", account, symbol).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if delta.Sign() < 0 {
			return fmt.Errorf("%w: %s holds no %s", ErrInsufficientBalance, account, symbol)
		}
		row = Balance{ID: uuid.New(), Account: account, Symbol: symbol, Amount: delta.String()}
		return tx.Create(&row).Error
	case err != nil:
		return err
	}
	current, err := parseAmount(row.Amount)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("%w: %s holds %s %s", ErrInsufficientBalance, account, current, symbol)
	}
	return tx.Model(&row).Updates(map[string]any{"amount": next.String(), "updated_at": l.now()}).Error
}

func amountOf(q crowdsale.Quantity) *big.Int {
	if q.Amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(q.Amount)
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("assets: malformed stored amount %q", raw)
	}
	return value, nil
}
