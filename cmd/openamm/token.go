package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"openamm/internal/chain"
	"openamm/internal/model"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Read ERC20 metadata and an optional holder balance over rpc",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) (any, error) {
				if a.rpc == nil {
					return nil, fmt.Errorf("--rpc is required")
				}
				mint, err := addressFlag(cmd, "mint")
				if err != nil {
					return nil, err
				}
				meta, err := chain.FetchAssetMeta(ctx, a.rpc, mint, a.logger)
				if err != nil {
					return nil, err
				}
				out := struct {
					model.AssetMeta
					ChainID string `json:"chain_id"`
					Balance string `json:"balance,omitempty"`
				}{AssetMeta: meta, ChainID: a.rpc.ChainID().String()}

				if holderFlag, _ := cmd.Flags().GetString("holder"); holderFlag != "" {
					holder, err := addressFlag(cmd, "holder")
					if err != nil {
						return nil, err
					}
					bal, err := chain.BalanceOf(ctx, a.rpc, mint, holder)
					if err != nil {
						return nil, err
					}
					out.Balance = bal.String()
				}
				return out, nil
			})
		},
	}
	cmd.Flags().String("mint", "", "token address")
	cmd.Flags().String("holder", "", "holder whose balance is read")
	return cmd
}
