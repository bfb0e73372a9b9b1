// Command phishctl extracts features and runs the phishing model offline.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/phishguard/phishguard-go/internal/features"
)

// Globals are shared by every command.
type Globals struct {
	Debug    bool   `help:"Enable debug logging"`
	Keywords string `help:"Keyword list YAML overriding the built-in lists" type:"existingfile" env:"KEYWORDS_FILE"`

	out    io.Writer
	logger *slog.Logger
}

func (g *Globals) extractor() (*features.Extractor, error) {
	if g.Keywords == "" {
		return features.NewExtractor(nil), nil
	}
	kw, err := features.LoadKeywords(g.Keywords)
	if err != nil {
		return nil, err
	}
	return features.NewExtractor(kw), nil
}

// CLIFlags is the command tree.
type CLIFlags struct {
	Globals

	Extract ExtractCmd `cmd:"" help:"Print the feature vector of one or more URLs"`
	Predict PredictCmd `cmd:"" help:"Classify one or more URLs"`
	Batch   BatchCmd   `cmd:"" help:"Classify every URL of a CSV file"`
	Schema  SchemaCmd  `cmd:"" help:"Write the feature schema file"`
	Verify  VerifyCmd  `cmd:"" help:"Check a model artifact and schema file against the compiled schema"`
}

func newLogger(debug bool) *slog.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "phishctl",
	})
	return slog.New(handler)
}

func main() {
	var flags CLIFlags
	ctx := kong.Parse(&flags,
		kong.Name("phishctl"),
		kong.Description("Offline tooling for the phishing URL classifier."),
		kong.UsageOnError(),
	)

	flags.out = os.Stdout
	flags.logger = newLogger(flags.Debug)
	err := ctx.Run(&flags.Globals)
	if err != nil {
		flags.logger.Error("command failed", "command", ctx.Command(), "err", err)
		os.Exit(1)
	}
}
