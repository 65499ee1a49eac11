package state

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"crowdsale/native/crowdsale"
)

type storedQuantity struct {
	Amount   *big.Int
	Code     string
	Decimals uint8
}

type storedRates struct {
	BaseUSD         storedQuantity
	SecondaryUSD    storedQuantity
	SecondaryRaised storedQuantity
	UnitsPerUSD     storedQuantity
}

type storedSale struct {
	Start          uint64
	Finish         uint64
	TotalBase      *big.Int
	TotalUSD       *big.Int
	SecondaryUSD   *big.Int
	Rates          storedRates
	ValidUntil     uint64
	Finished       bool
	HardcapReached bool
	Finalized      bool
	Settling       bool
	SettledBase    *big.Int
	SettledUSD     *big.Int
	NextDepositID  uint64
	Nonce          uint64
	Clock          uint64
}

type storedDeposit struct {
	ID        uint64
	Investor  [20]byte
	Base      *big.Int
	USD       *big.Int
	Units     *big.Int
	Timestamp uint64
}

func toStoredQuantity(q crowdsale.Quantity) storedQuantity {
	return storedQuantity{Amount: cloneBig(q.Amount), Code: q.Unit.Code, Decimals: q.Unit.Decimals}
}

func (s storedQuantity) quantity() crowdsale.Quantity {
	return crowdsale.Quantity{Amount: cloneBig(s.Amount), Unit: crowdsale.Unit{Code: s.Code, Decimals: s.Decimals}}
}

func newStoredSale(sale *crowdsale.Sale) *storedSale {
	return &storedSale{
		Start:        unixToStored(sale.Start),
		Finish:       unixToStored(sale.Finish),
		TotalBase:    cloneBig(sale.TotalBase),
		TotalUSD:     cloneBig(sale.TotalUSD),
		SecondaryUSD: cloneBig(sale.SecondaryUSD),
		Rates: storedRates{
			BaseUSD:         toStoredQuantity(sale.Rates.BaseUSD),
			SecondaryUSD:    toStoredQuantity(sale.Rates.SecondaryUSD),
			SecondaryRaised: toStoredQuantity(sale.Rates.SecondaryRaised),
			UnitsPerUSD:     toStoredQuantity(sale.Rates.UnitsPerUSD),
		},
		ValidUntil:     unixToStored(sale.ValidUntil),
		Finished:       sale.Finished,
		HardcapReached: sale.HardcapReached,
		Finalized:      sale.Finalized,
		Settling:       sale.Settling,
		SettledBase:    cloneBig(sale.SettledBase),
		SettledUSD:     cloneBig(sale.SettledUSD),
		NextDepositID:  sale.NextDepositID,
		Nonce:          sale.Nonce,
		Clock:          unixToStored(sale.Clock),
	}
}

func (s *storedSale) sale() *crowdsale.Sale {
	return &crowdsale.Sale{
		Start:        int64(s.Start),
		Finish:       int64(s.Finish),
		TotalBase:    cloneBig(s.TotalBase),
		TotalUSD:     cloneBig(s.TotalUSD),
		SecondaryUSD: cloneBig(s.SecondaryUSD),
		Rates: crowdsale.Rates{
			BaseUSD:         s.Rates.BaseUSD.quantity(),
			SecondaryUSD:    s.Rates.SecondaryUSD.quantity(),
			SecondaryRaised: s.Rates.SecondaryRaised.quantity(),
			UnitsPerUSD:     s.Rates.UnitsPerUSD.quantity(),
		},
		ValidUntil:     int64(s.ValidUntil),
		Finished:       s.Finished,
		HardcapReached: s.HardcapReached,
		Finalized:      s.Finalized,
		Settling:       s.Settling,
		SettledBase:    cloneBig(s.SettledBase),
		SettledUSD:     cloneBig(s.SettledUSD),
		NextDepositID:  s.NextDepositID,
		Nonce:          s.Nonce,
		Clock:          int64(s.Clock),
	}
}

func unixToStored(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func depositKey(id uint64) []byte {
	buf := make([]byte, len(crowdsaleDepositPrefix)+8)
	copy(buf, crowdsaleDepositPrefix)
	binary.BigEndian.PutUint64(buf[len(crowdsaleDepositPrefix):], id)
	return buf
}

func investorDepositsKey(investor [20]byte) []byte {
	return append(append([]byte(nil), crowdsaleInvestorDepositsPref...), investor[:]...)
}

func listKey(list crowdsale.ListKind, account [20]byte) []byte {
	buf := append([]byte(nil), crowdsaleListPrefix...)
	buf = append(buf, byte(list))
	return append(buf, account[:]...)
}

// CrowdsaleSaleGet loads the sale singleton.
func (m *Manager) CrowdsaleSaleGet() (*crowdsale.Sale, bool, error) {
	var stored storedSale
	ok, err := m.KVGet(crowdsaleSaleKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.sale(), true, nil
}

// CrowdsaleSalePut persists the sale singleton.
func (m *Manager) CrowdsaleSalePut(sale *crowdsale.Sale) error {
	if sale == nil {
		return fmt.Errorf("crowdsale: nil sale")
	}
	return m.KVPut(crowdsaleSaleKey, newStoredSale(sale))
}

// CrowdsaleDepositPut stores a contribution and indexes it under its
// investor.
func (m *Manager) CrowdsaleDepositPut(dep *crowdsale.Deposit) error {
	if dep == nil {
		return fmt.Errorf("crowdsale: nil deposit")
	}
	stored := &storedDeposit{
		ID:        dep.ID,
		Investor:  dep.Investor,
		Base:      cloneBig(dep.Base),
		USD:       cloneBig(dep.USD),
		Units:     cloneBig(dep.Units),
		Timestamp: unixToStored(dep.Timestamp),
	}
	if err := m.KVPut(depositKey(dep.ID), stored); err != nil {
		return err
	}
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, dep.ID)
	if err := m.KVAppend(investorDepositsKey(dep.Investor), id); err != nil {
		return err
	}
	return m.KVAppend(crowdsaleInvestorIndexKey, dep.Investor[:])
}

// CrowdsaleDepositsByInvestor returns the live deposits of investor ordered by
// ID.
func (m *Manager) CrowdsaleDepositsByInvestor(investor [20]byte) ([]*crowdsale.Deposit, error) {
	var ids [][]byte
	if err := m.KVGetList(investorDepositsKey(investor), &ids); err != nil {
		return nil, err
	}
	deposits := make([]*crowdsale.Deposit, 0, len(ids))
	for _, raw := range ids {
		if len(raw) != 8 {
			return nil, fmt.Errorf("crowdsale: malformed deposit index entry")
		}
		id := binary.BigEndian.Uint64(raw)
		var stored storedDeposit
		ok, err := m.KVGet(depositKey(id), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("crowdsale: deposit %d missing from index", id)
		}
		deposits = append(deposits, &crowdsale.Deposit{
			ID:        stored.ID,
			Investor:  stored.Investor,
			Base:      cloneBig(stored.Base),
			USD:       cloneBig(stored.USD),
			Units:     cloneBig(stored.Units),
			Timestamp: int64(stored.Timestamp),
		})
	}
	sort.Slice(deposits, func(i, j int) bool { return deposits[i].ID < deposits[j].ID })
	return deposits, nil
}

// CrowdsaleDepositsDelete removes every deposit of investor together with
// its index.
func (m *Manager) CrowdsaleDepositsDelete(investor [20]byte) error {
	var ids [][]byte
	if err := m.KVGetList(investorDepositsKey(investor), &ids); err != nil {
		return err
	}
	for _, raw := range ids {
		if len(raw) != 8 {
			continue
		}
		if err := m.KVDelete(depositKey(binary.BigEndian.Uint64(raw))); err != nil {
			return err
		}
	}
	return m.KVDelete(investorDepositsKey(investor))
}

// CrowdsaleInvestors lists every account that ever contributed, in order of
// first contribution.
func (m *Manager) CrowdsaleInvestors() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList(crowdsaleInvestorIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("crowdsale: malformed investor index entry")
		}
		var account [20]byte
		copy(account[:], entry)
		out = append(out, account)
	}
	return out, nil
}

// CrowdsaleListHas reports whether account is a member of list.
func (m *Manager) CrowdsaleListHas(list crowdsale.ListKind, account [20]byte) (bool, error) {
	return m.KVGet(listKey(list, account), nil)
}

// CrowdsaleListSet adds or removes account from list.
func (m *Manager) CrowdsaleListSet(list crowdsale.ListKind, account [20]byte, member bool) error {
	if member {
		return m.KVPut(listKey(list, account), true)
	}
	return m.KVDelete(listKey(list, account))
}
