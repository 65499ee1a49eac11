package crowdsale

import "math/big"

// White adds account to the whitelist.
func (e *Engine) White(p Principal, account [20]byte) error {
	return e.WhiteMany(p, [][20]byte{account})
}

// Unwhite removes account from the whitelist.
func (e *Engine) Unwhite(p Principal, account [20]byte) error {
	return e.UnwhiteMany(p, [][20]byte{account})
}

// Grey adds account to the greylist.
func (e *Engine) Grey(p Principal, account [20]byte) error {
	return e.GreyMany(p, [][20]byte{account})
}

// Ungrey removes account from the greylist.
func (e *Engine) Ungrey(p Principal, account [20]byte) error {
	return e.UngreyMany(p, [][20]byte{account})
}

// WhiteMany whitelists every account and folds their recorded deposits into
// the raised totals. The batch is rejected as a whole if any entry is
// invalid.
func (e *Engine) WhiteMany(p Principal, accounts [][20]byte) error {
	return e.changeList(p, ListWhite, true, accounts)
}

// UnwhiteMany removes every account from the whitelist and subtracts their
// deposits from the raised totals.
func (e *Engine) UnwhiteMany(p Principal, accounts [][20]byte) error {
	return e.changeList(p, ListWhite, false, accounts)
}

// GreyMany greylists every account. Greylisted accounts cannot contribute.
func (e *Engine) GreyMany(p Principal, accounts [][20]byte) error {
	return e.changeList(p, ListGrey, true, accounts)
}

// UngreyMany removes every account from the greylist.
func (e *Engine) UngreyMany(p Principal, accounts [][20]byte) error {
	return e.changeList(p, ListGrey, false, accounts)
}

func (e *Engine) changeList(p Principal, list ListKind, member bool, accounts [][20]byte) error {
	sale, err := e.issuerSale(p)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return ErrEmptyBatch
	}
	if list == ListWhite && (sale.Settling || sale.Finalized) {
		return ErrSettlementStarted
	}
	other := ListGrey
	if list == ListGrey {
		other = ListWhite
	}
	seen := make(map[[20]byte]struct{}, len(accounts))
	for _, account := range accounts {
		if _, dup := seen[account]; dup {
			return ErrDuplicateAccount
		}
		seen[account] = struct{}{}
		listed, err := e.state.CrowdsaleListHas(list, account)
		if err != nil {
			return err
		}
		if member && listed {
			return ErrAlreadyListed
		}
		if !member && !listed {
			return ErrNotListed
		}
		if member {
			conflict, err := e.state.CrowdsaleListHas(other, account)
			if err != nil {
				return err
			}
			if conflict {
				if other == ListWhite {
					return ErrWhitelisted
				}
				return ErrGreylisted
			}
		}
	}

	for _, account := range accounts {
		if list == ListWhite {
			if err := e.shiftTotals(sale, account, member); err != nil {
				return err
			}
		}
		if err := e.state.CrowdsaleListSet(list, account, member); err != nil {
			return err
		}
	}
	if list == ListWhite {
		if err := e.state.CrowdsaleSalePut(sale); err != nil {
			return err
		}
	}
	for _, account := range accounts {
		e.emit(EligibilityChangedEvent(list, account, member, sale))
	}
	return nil
}

// shiftTotals adds (or subtracts) the live deposits of account to the
// raised totals.
func (e *Engine) shiftTotals(sale *Sale, account [20]byte, add bool) error {
	deposits, err := e.state.CrowdsaleDepositsByInvestor(account)
	if err != nil {
		return err
	}
	base, usd := sumDeposits(deposits)
	if add {
		sale.TotalBase = addTo(sale.TotalBase, base)
		sale.TotalUSD = addTo(sale.TotalUSD, usd)
		return nil
	}
	if sale.TotalBase, err = subFrom(sale.TotalBase, base); err != nil {
		return err
	}
	if sale.TotalUSD, err = subFrom(sale.TotalUSD, usd); err != nil {
		return err
	}
	return nil
}

func sumDeposits(deposits []*Deposit) (base, usd *big.Int) {
	base, usd = big.NewInt(0), big.NewInt(0)
	for _, dep := range deposits {
		if dep == nil {
			continue
		}
		base.Add(base, newBigInt(dep.Base))
		usd.Add(usd, newBigInt(dep.USD))
	}
	return base, usd
}
