// Package main is the entry point for the biblio server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lepinkainen/humanlog"
	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "biblio",
	Short: "Personal library server with multi-provider book search",
	Long: `biblio keeps a library of books, authors, lists and tags in SQLite and
searches it together with Google Books, Open Library and the Deutsche
Nationalbibliothek. Results can be imported into the library, and cover
photos can be read by a vision model to start a search.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./biblio.yaml or ~/.config/biblio/biblio.yaml)")
}

func initLogging(level slog.Level) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
