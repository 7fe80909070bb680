// Command seed writes the upstream key and countries straight into the
// configured status store, without going through the bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sms-hunter/internal/application"
	"sms-hunter/internal/config"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/infra/store"
	"sms-hunter/internal/infra/store/file"
	"sms-hunter/internal/usecase"
)

type countryFlags []string

func (c *countryFlags) String() string { return strings.Join(*c, ",") }

func (c *countryFlags) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("empty country id")
	}
	*c = append(*c, v)
	return nil
}

type options struct {
	configPath  string
	key         string
	countries   countryFlags
	show        bool
	resetStatus bool
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.configPath, "config", "config.yaml", "path to YAML config file")
	fs.StringVar(&o.key, "key", "", "SMS-Man API key to store")
	fs.Var(&o.countries, "country", "country id to add (repeatable)")
	fs.BoolVar(&o.show, "show", false, "print the stored document with the key redacted")
	fs.BoolVar(&o.resetStatus, "reset-status", false, "clear a stuck status and admin prompt")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	// ---- Config ----
	cfg, err := config.Load(opts.configPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	backend, err := store.Open(ctx, cfg, &logger)
	if err != nil {
		log.Fatalf("status store: %v", err)
	}
	defer backend.Close()

	if err := run(ctx, backend, opts, os.Stdout); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func run(ctx context.Context, backend *store.Backend, opts options, out io.Writer) error {
	doc, err := backend.Repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}

	changed := false
	if k := strings.TrimSpace(opts.key); k != "" {
		doc.Key = k
		changed = true
		fmt.Fprintf(out, "key set: %s\n", application.KeyHint(k))
	}
	for _, id := range opts.countries {
		code := usecase.NewCountryCode(doc.Countries)
		doc.Countries.Add(code, id)
		changed = true
		fmt.Fprintf(out, "country added: %s (code %s)\n", id, code)
	}
	if opts.resetStatus {
		doc.Status = model.StatusIdle
		doc.Admin = model.CursorIdle
		changed = true
		fmt.Fprintln(out, "status reset to idle")
	}

	if changed {
		if err := backend.Repo.Save(ctx, doc); err != nil {
			return fmt.Errorf("save status: %w", err)
		}
	}
	if opts.show || !changed {
		redacted := doc.Clone()
		redacted.Key = application.KeyHint(doc.Key)
		b, err := file.Encode(redacted)
		if err != nil {
			return err
		}
		_, _ = out.Write(b)
	}
	return nil
}
