package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type balanceKey struct {
	Holder common.Address
	Mint   common.Address
}

// Memory is an in-process Ledger. Its state can be written to and read from a
// JSON file so that CLI invocations share balances.
type Memory struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
	supply   map[common.Address]uint64
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[balanceKey]uint64),
		supply:   make(map[common.Address]uint64),
	}
}

func (m *Memory) Balance(_ context.Context, holder, mint common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[balanceKey{holder, mint}], nil
}

func (m *Memory) Supply(_ context.Context, mint common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply[mint], nil
}

// Apply stages every operation against a scratch copy of the touched
// balances and commits only if all of them succeed.
func (m *Memory) Apply(_ context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balances := make(map[balanceKey]uint64)
	supply := make(map[common.Address]uint64)
	get := func(k balanceKey) uint64 {
		if v, ok := balances[k]; ok {
			return v
		}
		return m.balances[k]
	}
	getSupply := func(mint common.Address) uint64 {
		if v, ok := supply[mint]; ok {
			return v
		}
		return m.supply[mint]
	}
	debit := func(k balanceKey, amount uint64) error {
		cur := get(k)
		if cur < amount {
			return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, k.Holder.Hex(), cur, k.Mint.Hex(), amount)
		}
		balances[k] = cur - amount
		return nil
	}
	credit := func(k balanceKey, amount uint64) error {
		cur := get(k)
		if cur+amount < cur {
			return ErrBalanceOverflow
		}
		balances[k] = cur + amount
		return nil
	}

	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpTransfer:
			if err = debit(balanceKey{op.From, op.Mint}, op.Amount); err == nil {
				err = credit(balanceKey{op.To, op.Mint}, op.Amount)
			}
		case OpMint:
			s := getSupply(op.Mint)
			if s+op.Amount < s {
				err = ErrBalanceOverflow
			} else if err = credit(balanceKey{op.To, op.Mint}, op.Amount); err == nil {
				supply[op.Mint] = s + op.Amount
			}
		case OpBurn:
			s := getSupply(op.Mint)
			if s < op.Amount {
				err = ErrInsufficientBalance
			} else if err = debit(balanceKey{op.From, op.Mint}, op.Amount); err == nil {
				supply[op.Mint] = s - op.Amount
			}
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("ledger op %d (%s): %w", i, op.Kind, err)
		}
	}

	for k, v := range balances {
		if v == 0 {
			delete(m.balances, k)
			continue
		}
		m.balances[k] = v
	}
	for k, v := range supply {
		m.supply[k] = v
	}
	return nil
}

type balanceRecord struct {
	Holder common.Address `json:"holder"`
	Mint   common.Address `json:"mint"`
	Amount uint64         `json:"amount"`
}

type supplyRecord struct {
	Mint   common.Address `json:"mint"`
	Amount uint64         `json:"amount"`
}

type memoryState struct {
	Balances []balanceRecord `json:"balances"`
	Supply   []supplyRecord  `json:"supply"`
}

// LoadMemory reads a ledger written by SaveFile. A missing file yields an
// empty ledger.
func LoadMemory(path string) (*Memory, error) {
	m := NewMemory()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var st memoryState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	for _, b := range st.Balances {
		m.balances[balanceKey{b.Holder, b.Mint}] = b.Amount
	}
	for _, s := range st.Supply {
		m.supply[s.Mint] = s.Amount
	}
	return m, nil
}

// SaveFile writes the ledger atomically through a temp file and rename.
func (m *Memory) SaveFile(path string) error {
	m.mu.Lock()
	st := memoryState{}
	for k, v := range m.balances {
		st.Balances = append(st.Balances, balanceRecord{Holder: k.Holder, Mint: k.Mint, Amount: v})
	}
	for k, v := range m.supply {
		st.Supply = append(st.Supply, supplyRecord{Mint: k, Amount: v})
	}
	m.mu.Unlock()

	sort.Slice(st.Balances, func(i, j int) bool {
		if st.Balances[i].Holder != st.Balances[j].Holder {
			return st.Balances[i].Holder.Hex() < st.Balances[j].Holder.Hex()
		}
		return st.Balances[i].Mint.Hex() < st.Balances[j].Mint.Hex()
	})
	sort.Slice(st.Supply, func(i, j int) bool { return st.Supply[i].Mint.Hex() < st.Supply[j].Mint.Hex() })

	return writeJSONAtomic(path, st)
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

var _ Ledger = (*Memory)(nil)
