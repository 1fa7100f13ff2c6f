package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"srdash/artifacts"
	"srdash/core"
	"srdash/enhance"
)

func newEnhanceCmd(opts *rootOptions) *cobra.Command {
	var (
		scale        int
		output       string
		superResolve bool
	)
	cmd := &cobra.Command{
		Use:   "enhance <image>",
		Short: "Send one image to the enhancement backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			u := enhance.Upload{
				Name:        filepath.Base(path),
				ContentType: enhance.DetectContentType(path, "", data),
				Data:        data,
			}
			if err := enhance.ValidateUpload(&u, cfg.MaxUploadBytes); err != nil {
				return err
			}

			client := enhance.NewClient(cfg.APIURL, core.GetEnhanceHTTPClient(cfg), nil).
				WithMaxResponseBytes(cfg.MaxResponseBytes)
			var res *enhance.Result
			if superResolve {
				res, err = client.SuperResolve(cmd.Context(), u)
			} else {
				res, err = client.Enhance(cmd.Context(), u, scale)
			}
			if err != nil {
				return err
			}

			resolution, format := "unknown size", ""
			if w, h, f, err := artifacts.Dimensions(res.Image); err == nil {
				resolution, format = artifacts.Resolution(w, h), f
			}
			if output == "" {
				output = enhancedName(path, format)
			}
			if err := os.WriteFile(output, res.Image, 0o644); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "✓ %s\n", output)
			fmt.Fprintf(out, "  %s, %s, %.1fs\n", resolution, humanize.Bytes(uint64(len(res.Image))), res.ElapsedSeconds)
			return nil
		},
	}
	cmd.Flags().IntVarP(&scale, "scale", "s", 4, "upscale factor for /enhance (2 or 4)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <name>_enhanced.<format>)")
	cmd.Flags().BoolVar(&superResolve, "super-resolve", false, "use /super-resolve instead of /enhance")
	return cmd
}

// enhancedName turns photo.jpg into photo_enhanced.<format>, keeping the
// input extension when the output format is unknown.
func enhancedName(path, format string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	switch format {
	case "":
		return base + "_enhanced" + ext
	case "jpeg":
		return base + "_enhanced.jpg"
	default:
		return base + "_enhanced." + format
	}
}
