package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"webshot/internal/capture"
	"webshot/internal/observability"
)

// newCaptureCommand is the one-shot mode: screenshot a single URL to a file
// without running the service.
func newCaptureCommand() *cobra.Command {
	var (
		width    int
		height   int
		format   string
		output   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a single page screenshot to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = formatFromPath(output)
			}

			log := observability.NewLogger(observability.LogConfig{Level: logLevel})
			svc := capture.NewService(capture.Options{}, log, capture.NewMetrics())

			result, err := svc.Capture(context.Background(), capture.Request{
				URL:    args[0],
				Width:  width,
				Height: height,
				Format: format,
			})
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, result.Image, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Printf("Wrote %s (%dx%d, %d bytes)\n", output, result.Width, result.Height, len(result.Image))
			if result.Title != "" {
				fmt.Printf("Title: %s\n", result.Title)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&width, "width", "W", capture.DefaultWidth, "output width in pixels")
	cmd.Flags().IntVarP(&height, "height", "H", capture.DefaultHeight, "output height in pixels")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: webp, jpeg, png (default from output extension)")
	cmd.Flags().StringVarP(&output, "output", "o", "screenshot.webp", "output file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}

func formatFromPath(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "webp"
	}
	return ext
}
