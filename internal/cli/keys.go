package cli

import (
	"os"

	"github.com/spf13/cobra"

	"cate-trust-layer/internal/app"
)

var (
	keygenOut   string
	keygenForce bool

	verifyFile    string
	verifyTrusted string

	pdaAsset string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Keygen(app.KeygenOptions{OutPath: keygenOut, Force: keygenForce}, cmd.OutOrStdout())
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signed decision (JSON) from a file or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if verifyFile != "" && verifyFile != "-" {
			f, err := os.Open(verifyFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return getApp().Verify(in, app.VerifyOptions{Trusted: verifyTrusted}, cmd.OutOrStdout())
	},
}

var pdaCmd = &cobra.Command{
	Use:   "pda",
	Short: "Print trust anchor program addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().PDA(pdaAsset, cmd.OutOrStdout())
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "Write a Solana CLI keypair file instead of printing the secret key")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing keypair file")

	verifyCmd.Flags().StringVar(&verifyFile, "file", "-", "Signed decision JSON file, - for stdin")
	verifyCmd.Flags().StringVar(&verifyTrusted, "trusted", "", "Base58 signer the decision must come from")

	pdaCmd.Flags().StringVar(&pdaAsset, "asset", "", "Asset id for the asset status account")
}
