package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	fitWidth        int
	fitHeight       int
	fitDownsampling float64
)

var checkfitCmd = &cobra.Command{
	Use:   "checkfit",
	Short: "Report whether an image size fits the detector's memory",
	Args:  cobra.NoArgs,
	RunE:  runCheckfit,
}

func init() {
	checkfitCmd.Flags().IntVar(&fitWidth, "width", 0, "Image width in pixels (required)")
	checkfitCmd.Flags().IntVar(&fitHeight, "height", 0, "Image height in pixels (required)")
	checkfitCmd.Flags().Float64Var(&fitDownsampling, "downsampling", -1, "Downsampling exponent")
	checkfitCmd.MarkFlagRequired("width")
	checkfitCmd.MarkFlagRequired("height")
}

func runCheckfit(cmd *cobra.Command, args []string) error {
	downsampling := cfg.Detection.Downsampling
	if cmd.Flags().Changed("downsampling") {
		downsampling = fitDownsampling
	}

	a := newApp()
	defer a.close()

	fits, err := a.extractor.CheckFit(fitWidth, fitHeight, downsampling)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), fits)
	return nil
}
