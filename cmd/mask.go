package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMaskCmd() *cobra.Command {
	var tolerance int

	cmd := &cobra.Command{
		Use:   "mask <input> <output>",
		Short: "Clear the white background of a single image",
		Long: `Decodes <input>, makes the white background connected to the top-left
corner transparent and writes a PNG to <output>. Images whose top-left pixel
is not pure white are copied unchanged.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			if !cmd.Flags().Changed("tolerance") {
				tolerance = appInstance.Config().Images.Mask.Tolerance
			}
			processor, err := appInstance.Thumbnails(tolerance)
			if err != nil {
				return err
			}

			in, out := args[0], args[1]
			// #nosec G304 -- the input path is supplied by the operator.
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}
			result, err := processor.Process(data)
			if err != nil {
				return fmt.Errorf("mask %s: %w", in, err)
			}
			if result.Data == nil {
				result.Data = data
			}
			if err := os.WriteFile(out, result.Data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			appInstance.Logger().Debug("Masked image",
				zap.String("input", in),
				zap.String("output", out),
				zap.Int("width", result.Width),
				zap.Int("height", result.Height),
				zap.String("outcome", result.Outcome.String()),
			)
			fmt.Fprintln(cmd.OutOrStdout(), result.Outcome.String())
			return nil
		},
	}

	cmd.Flags().IntVar(&tolerance, "tolerance", 0, "per-channel distance from white still treated as background (default from config)")
	return cmd
}
