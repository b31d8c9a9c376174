package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"openamm/internal/amm"
	"openamm/internal/liquidity"
	"openamm/internal/model"
	"openamm/internal/venue"
)

// poolView is the printed form of a pool.
type poolView struct {
	Address      string `json:"address"`
	Market       string `json:"market"`
	OpenOrders   string `json:"open_orders"`
	Curve        string `json:"curve"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	RefundBase   uint64 `json:"refund_base"`
	RefundQuote  uint64 `json:"refund_quote"`
	BaseVolume   uint64 `json:"cumulative_base_volume"`
	QuoteVolume  uint64 `json:"cumulative_quote_volume"`
	NextClientID uint64 `json:"next_client_order_id"`
	Asks         int    `json:"placed_asks"`
	Bids         int    `json:"placed_bids"`
	Active       bool   `json:"mm_active"`
	LPSupply     uint64 `json:"lp_supply,omitempty"`
}

func viewPool(p model.Pool) poolView {
	asks, bids := p.PlacedCount()
	return poolView{
		Address:      p.Address.Hex(),
		Market:       p.Market.Hex(),
		OpenOrders:   p.OpenOrders.Hex(),
		Curve:        p.CurveType.String(),
		Base:         model.FormatAmount(p.BaseAmount, p.BaseDecimals),
		Quote:        model.FormatAmount(p.QuoteAmount, p.QuoteDecimals),
		RefundBase:   p.RefundBaseAmount,
		RefundQuote:  p.RefundQuoteAmount,
		BaseVolume:   p.CumulativeBaseVolume,
		QuoteVolume:  p.CumulativeQuoteVolume,
		NextClientID: p.ClientOrderID,
		Asks:         asks,
		Bids:         bids,
		Active:       p.MMActive,
	}
}

type opView struct {
	Pool    poolView `json:"pool"`
	Skipped bool     `json:"skipped,omitempty"`
	Fills   int      `json:"fills"`
	Paused  bool     `json:"paused,omitempty"`
	Orders  int      `json:"orders_placed"`
	LP      uint64   `json:"lp,omitempty"`
	Base    uint64   `json:"base,omitempty"`
	Quote   uint64   `json:"quote,omitempty"`
}

func viewResult(r amm.Result) opView {
	fills := 0
	for _, f := range r.Reconcile.Fills {
		if f.Base != 0 || f.Quote != 0 {
			fills++
		}
	}
	return opView{
		Pool:    viewPool(r.Pool),
		Skipped: r.Skipped,
		Fills:   fills,
		Paused:  r.Reconcile.Deactivated,
		Orders:  len(r.Orders),
		LP:      r.LP,
		Base:    r.Base,
		Quote:   r.Quote,
	}
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pool on a market with its initial liquidity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				owner, err := a.owner()
				if err != nil {
					return nil, err
				}
				market, err := addressFlag(cmd, "market")
				if err != nil {
					return nil, err
				}
				curveName, _ := cmd.Flags().GetString("curve")
				curve, err := model.ParseCurveType(curveName)
				if err != nil {
					return nil, err
				}
				baseMint, err := addressFlag(cmd, "base-mint")
				if err != nil {
					return nil, err
				}
				quoteMint, err := addressFlag(cmd, "quote-mint")
				if err != nil {
					return nil, err
				}
				if err := ensureMarket(ctx, cmd, a, market, baseMint, quoteMint); err != nil {
					return nil, err
				}
				base, _ := cmd.Flags().GetUint64("base")
				quote, _ := cmd.Flags().GetUint64("quote")

				res, err := a.svc.CreatePool(ctx, amm.CreateRequest{
					Owner:        owner,
					Market:       market,
					Curve:        curve,
					BaseMint:     baseMint,
					QuoteMint:    quoteMint,
					InitialBase:  base,
					InitialQuote: quote,
				})
				if err != nil {
					return nil, err
				}
				return viewResult(res), nil
			})
		},
	}
	cmd.Flags().String("market", "", "venue market address")
	cmd.Flags().String("curve", "xyk", "curve type (xyk, stable)")
	cmd.Flags().String("base-mint", "", "base token mint")
	cmd.Flags().String("quote-mint", "", "quote token mint")
	cmd.Flags().Uint64("base", 0, "initial base amount (native units)")
	cmd.Flags().Uint64("quote", 0, "initial quote amount (native units)")
	cmd.Flags().Uint64("base-lot", 0, "base lot size when the market is new on the paper venue")
	cmd.Flags().Uint64("quote-lot", 0, "quote lot size when the market is new on the paper venue")
	cmd.Flags().Int("capacity", 0, "orders per side before the paper venue evicts (0 means unlimited)")
	return cmd
}

// ensureMarket registers market on the paper venue when it is not there yet
// and lot sizes were given.
func ensureMarket(ctx context.Context, cmd *cobra.Command, a *app, market, baseMint, quoteMint common.Address) error {
	_, err := a.paper.Market(ctx, market)
	if err == nil || !errors.Is(err, venue.ErrUnknownMarket) {
		return err
	}
	baseLot, _ := cmd.Flags().GetUint64("base-lot")
	quoteLot, _ := cmd.Flags().GetUint64("quote-lot")
	if baseLot == 0 || quoteLot == 0 {
		return fmt.Errorf("market %s is unknown: pass --base-lot and --quote-lot to register it", market.Hex())
	}
	capacity, _ := cmd.Flags().GetInt("capacity")
	if err := a.paper.AddMarket(model.MarketInfo{
		Address:      market,
		BaseMint:     baseMint,
		QuoteMint:    quoteMint,
		BaseLotSize:  baseLot,
		QuoteLotSize: quoteLot,
	}, capacity); err != nil {
		return err
	}
	a.logger.Info("paper market registered",
		zap.String("market", market.Hex()),
		zap.Uint64("base_lot", baseLot),
		zap.Uint64("quote_lot", quoteLot),
	)
	return nil
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Add liquidity to a pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				owner, err := a.owner()
				if err != nil {
					return nil, err
				}
				pool, err := addressFlag(cmd, "pool")
				if err != nil {
					return nil, err
				}
				base, _ := cmd.Flags().GetUint64("base")
				quote, _ := cmd.Flags().GetUint64("quote")
				minBase, _ := cmd.Flags().GetUint64("min-base")
				minQuote, _ := cmd.Flags().GetUint64("min-quote")

				res, err := a.svc.Deposit(ctx, amm.DepositParams{
					Owner: owner,
					Pool:  pool,
					DepositRequest: liquidity.DepositRequest{
						DesiredBase:  base,
						DesiredQuote: quote,
						MinBase:      minBase,
						MinQuote:     minQuote,
					},
				})
				if err != nil {
					return nil, err
				}
				return viewResult(res), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("base", 0, "desired base amount")
	cmd.Flags().Uint64("quote", 0, "desired quote amount")
	cmd.Flags().Uint64("min-base", 0, "minimum base accepted")
	cmd.Flags().Uint64("min-quote", 0, "minimum quote accepted")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn LP tokens for a share of the reserves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				owner, err := a.owner()
				if err != nil {
					return nil, err
				}
				pool, err := addressFlag(cmd, "pool")
				if err != nil {
					return nil, err
				}
				lp, _ := cmd.Flags().GetUint64("lp")
				res, err := a.svc.Withdraw(ctx, amm.WithdrawParams{Owner: owner, Pool: pool, LP: lp})
				if err != nil {
					return nil, err
				}
				return viewResult(res), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("lp", 0, "LP amount to burn")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Reconcile fills and replace a pool's ladder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				pool, err := addressFlag(cmd, "pool")
				if err != nil {
					return nil, err
				}
				res, err := a.svc.RefreshOrders(ctx, pool, a.cfg.Owner, model.MarketAccounts{})
				if err != nil {
					return nil, err
				}
				return viewResult(res), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	return cmd
}

func newRestartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Resume market making on a paused pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				pool, err := addressFlag(cmd, "pool")
				if err != nil {
					return nil, err
				}
				res, err := a.svc.RestartMarketMaking(ctx, pool, a.cfg.Owner, model.MarketAccounts{})
				if err != nil {
					return nil, err
				}
				return viewResult(res), nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				addr, err := addressFlag(cmd, "pool")
				if err != nil {
					return nil, err
				}
				pool, err := a.svc.Pool(ctx, addr)
				if err != nil {
					return nil, err
				}
				view := viewPool(pool)
				if view.LPSupply, err = a.ledger.Supply(ctx, pool.LPMint); err != nil {
					return nil, err
				}
				return view, nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	return cmd
}

type levelView struct {
	Side     string `json:"side"`
	Price    uint64 `json:"limit_price"`
	Lots     uint64 `json:"base_lots"`
	MaxQuote uint64 `json:"max_quote"`
}

type skipView struct {
	Side   string `json:"side"`
	Level  int    `json:"level"`
	Reason string `json:"reason"`
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Preview the ladder a refresh would place",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				addr, err := addressFlag(cmd, "pool")
				if err != nil {
					return nil, err
				}
				pv, err := a.svc.Quote(ctx, addr)
				if err != nil {
					return nil, err
				}
				out := struct {
					Pool   poolView    `json:"pool"`
					Levels []levelView `json:"levels"`
					Skips  []skipView  `json:"skips,omitempty"`
				}{Pool: viewPool(pv.Pool)}
				out.Pool.LPSupply = pv.LPSupply
				for _, o := range pv.Ladder.Orders {
					out.Levels = append(out.Levels, levelView{
						Side: o.Side.String(), Price: o.LimitPrice, Lots: o.MaxBaseQty, MaxQuote: o.MaxQuoteQtyInclFees,
					})
				}
				for _, s := range pv.Ladder.Skips {
					out.Skips = append(out.Skips, skipView{Side: s.Side.String(), Level: s.Level, Reason: string(s.Reason)})
				}
				return out, nil
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	return cmd
}
