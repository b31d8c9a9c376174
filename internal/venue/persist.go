package venue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"openamm/internal/ledger"
)

type paperState struct {
	Markets    []*market     `json:"markets"`
	OpenOrders []*openOrders `json:"open_orders"`
}

// LoadPaper restores a paper venue written by SaveFile. A missing file yields
// an empty venue.
func LoadPaper(path string, l ledger.Ledger, logger *zap.Logger) (*Paper, error) {
	p := NewPaper(l, logger)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read venue: %w", err)
	}
	var st paperState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse venue: %w", err)
	}
	for _, m := range st.Markets {
		p.markets[m.Info.Address] = m
	}
	for _, oo := range st.OpenOrders {
		p.openOrders[oo.Address] = oo
	}
	return p, nil
}

// SaveFile writes the venue state atomically.
func (p *Paper) SaveFile(path string) error {
	p.mu.Lock()
	st := paperState{}
	for _, m := range p.markets {
		st.Markets = append(st.Markets, m)
	}
	for _, oo := range p.openOrders {
		st.OpenOrders = append(st.OpenOrders, oo)
	}
	data, err := json.MarshalIndent(sortedState(st), "", "  ")
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal venue: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create venue dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write venue tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename venue: %w", err)
	}
	return nil
}

func sortedState(st paperState) paperState {
	sort.Slice(st.Markets, func(i, j int) bool {
		return st.Markets[i].Info.Address.Hex() < st.Markets[j].Info.Address.Hex()
	})
	sort.Slice(st.OpenOrders, func(i, j int) bool {
		return st.OpenOrders[i].Address.Hex() < st.OpenOrders[j].Address.Hex()
	})
	return st
}
