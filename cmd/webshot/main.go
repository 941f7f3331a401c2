package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "webshot",
		Short:        "Web page screenshot service",
		Long:         "webshot renders screenshots of web pages with a locally installed headless Chromium-family browser.",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newCaptureCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
