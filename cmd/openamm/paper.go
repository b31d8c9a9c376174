package main

import (
	"context"

	"github.com/spf13/cobra"

	"openamm/internal/ledger"
	"openamm/internal/model"
)

func newTakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Sweep the paper book with a taker order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				market, err := addressFlag(cmd, "market")
				if err != nil {
					return nil, err
				}
				taker, err := addressFlag(cmd, "taker")
				if err != nil {
					return nil, err
				}
				sideName, _ := cmd.Flags().GetString("side")
				side, err := model.ParseSide(sideName)
				if err != nil {
					return nil, err
				}
				lots, _ := cmd.Flags().GetUint64("qty")
				return a.paper.Take(ctx, market, taker, side, lots)
			})
		},
	}
	cmd.Flags().String("market", "", "market address")
	cmd.Flags().String("taker", "", "taker wallet address")
	cmd.Flags().String("side", "bid", "taker side (bid buys base, ask sells base)")
	cmd.Flags().Uint64("qty", 0, "base lots to take")
	return cmd
}

func newEvictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Evict a pool order from the paper book",
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
				id, _ := cmd.Flags().GetUint64("client-id")
				return nil, a.paper.Evict(ctx, pool.Market, pool.OpenOrders, id)
			})
		},
	}
	cmd.Flags().String("pool", "", "pool whose order is evicted")
	cmd.Flags().Uint64("client-id", 0, "client order id")
	return cmd
}

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Mint paper tokens to a holder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				holder, err := addressFlag(cmd, "holder")
				if err != nil {
					return nil, err
				}
				mint, err := addressFlag(cmd, "mint")
				if err != nil {
					return nil, err
				}
				amount, _ := cmd.Flags().GetUint64("amount")
				if err := a.ledger.Apply(ctx, []ledger.Op{ledger.MintTo(mint, holder, amount)}); err != nil {
					return nil, err
				}
				bal, err := a.ledger.Balance(ctx, holder, mint)
				if err != nil {
					return nil, err
				}
				return map[string]uint64{"balance": bal}, nil
			})
		},
	}
	cmd.Flags().String("holder", "", "holder address")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().Uint64("amount", 0, "amount in native units")
	return cmd
}
