package cli

import (
	"encoding/json"
	"fmt"

	"assessment-engine/internal/config"
	"assessment-engine/internal/logger"
	"github.com/spf13/cobra"
)

// NewVerifyCmd checks a certificate against the configured store and prints the result.
func NewVerifyCmd(configPath *string) *cobra.Command {
	var number, code string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a certificate number and code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Mode, cfg.Log.File)
			defer func() { _ = log.Sync() }()

			deps, err := buildDeps(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer deps.Close()

			result, err := deps.services.Certificates.Verify(cmd.Context(), number, code)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&number, "number", "", "certificate number")
	cmd.Flags().StringVar(&code, "code", "", "verification code")
	_ = cmd.MarkFlagRequired("number")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}
