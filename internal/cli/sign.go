package cli

import (
	"github.com/spf13/cobra"

	"cate-trust-layer/internal/api"
)

var signReq api.SignRequest

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a decision offline with the configured key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sign(signReq, cmd.OutOrStdout())
	},
}

func init() {
	f := signCmd.Flags()
	f.StringVar(&signReq.AssetID, "asset", "", "Asset id, at most 16 bytes")
	f.Float64Var(&signReq.Price, "price", 0, "Oracle price")
	f.Int64Var(&signReq.Timestamp, "timestamp", 0, "Unix seconds (defaults to now)")
	f.Int64Var(&signReq.ConfidenceRatio, "confidence-bps", 0, "Confidence ratio in basis points")
	f.Int64Var(&signReq.RiskScore, "risk-score", 0, "Risk score 0-100")
	f.BoolVar(&signReq.IsBlocked, "blocked", false, "Sign a BLOCK decision")
	f.Int64Var(&signReq.PublisherCount, "publishers", 0, "Oracle publisher count")
	f.Int64Var(&signReq.Nonce, "nonce", 0, "Nonce (defaults to a fresh one)")
	_ = signCmd.MarkFlagRequired("asset")
	_ = signCmd.MarkFlagRequired("price")
}
