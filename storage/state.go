package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"lendcore/native/lending"
)

const (
	poolPrefix        = "lending/pool/"
	positionPrefix    = "lending/pos/"
	feesPrefix        = "lending/fees/"
	liquidationPrefix = "lending/liq/"
	liquidationSeqKey = "lending/liq-seq"
)

// LendingState persists lending ledger records as JSON documents in a
// Database. Getters return fresh copies so callers can stage mutations
// without touching committed state.
type LendingState struct {
	db Database
}

func NewLendingState(db Database) *LendingState {
	return &LendingState{db: db}
}

func (s *LendingState) Pool(asset string) (*lending.PoolState, error) {
	var pool lending.PoolState
	ok, err := s.get(poolPrefix+asset, &pool)
	if err != nil || !ok {
		return nil, err
	}
	return &pool, nil
}

func (s *LendingState) PutPool(asset string, pool *lending.PoolState) error {
	if pool == nil {
		return errors.New("storage: nil pool")
	}
	return s.put(poolPrefix+asset, pool)
}

func (s *LendingState) Position(account, asset string) (*lending.AssetPosition, error) {
	var position lending.AssetPosition
	ok, err := s.get(positionKey(account, asset), &position)
	if err != nil || !ok {
		return nil, err
	}
	return &position, nil
}

func (s *LendingState) PutPosition(account, asset string, position *lending.AssetPosition) error {
	if position == nil {
		return errors.New("storage: nil position")
	}
	return s.put(positionKey(account, asset), position)
}

func (s *LendingState) Fees(asset string) (*lending.FeeAccrual, error) {
	var fees lending.FeeAccrual
	ok, err := s.get(feesPrefix+asset, &fees)
	if err != nil || !ok {
		return nil, err
	}
	return &fees, nil
}

func (s *LendingState) PutFees(asset string, fees *lending.FeeAccrual) error {
	if fees == nil {
		return errors.New("storage: nil fees")
	}
	return s.put(feesPrefix+asset, fees)
}

// AppendLiquidation assigns the record the next sequence number and stores
// it. Records are immutable once written.
func (s *LendingState) AppendLiquidation(record lending.LiquidationRecord) error {
	seq, err := s.nextLiquidationSeq()
	if err != nil {
		return err
	}
	return s.put(liquidationKey(seq), record)
}

// Liquidations returns every stored liquidation record in append order.
func (s *LendingState) Liquidations() ([]lending.LiquidationRecord, error) {
	count, err := s.liquidationCount()
	if err != nil {
		return nil, err
	}
	records := make([]lending.LiquidationRecord, 0, count)
	for seq := uint64(1); seq <= count; seq++ {
		var record lending.LiquidationRecord
		ok, err := s.get(liquidationKey(seq), &record)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *LendingState) liquidationCount() (uint64, error) {
	raw, err := s.db.Get([]byte(liquidationSeqKey))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.New("storage: corrupt liquidation counter")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *LendingState) nextLiquidationSeq() (uint64, error) {
	count, err := s.liquidationCount()
	if err != nil {
		return 0, err
	}
	next := count + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.db.Put([]byte(liquidationSeqKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *LendingState) get(key string, out any) (bool, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *LendingState) put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.db.Put([]byte(key), raw)
}

func positionKey(account, asset string) string {
	return positionPrefix + account + "/" + asset
}

func liquidationKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", liquidationPrefix, seq)
}
