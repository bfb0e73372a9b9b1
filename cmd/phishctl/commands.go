package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/sync/errgroup"

	"github.com/phishguard/phishguard-go/internal/enrich"
	"github.com/phishguard/phishguard-go/internal/features"
	"github.com/phishguard/phishguard-go/internal/model"
	"github.com/phishguard/phishguard-go/internal/predict"
)

// ExtractCmd prints feature vectors.
type ExtractCmd struct {
	All  bool     `help:"Include zero-valued features"`
	URLs []string `arg:"" name:"url" help:"URLs to extract"`
}

func (c *ExtractCmd) Run(g *Globals) error {
	ex, err := g.extractor()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(g.out)
	for _, u := range c.URLs {
		f := ex.Extract(u)
		m := f.Vector().Map()
		if !c.All {
			for k, v := range m {
				if v == 0 {
					delete(m, k)
				}
			}
		}
		if err := enc.Encode(map[string]any{"url": u, "schema": features.SchemaVersion, "features": m}); err != nil {
			return err
		}
	}
	return nil
}

// PredictCmd classifies URLs given on the command line.
type PredictCmd struct {
	Model    string        `help:"Model artifact (JSON, optionally gzip)" default:"model.json" type:"existingfile" env:"MODEL_PATH"`
	Enrich   bool          `help:"Fetch the page and query DNS to fill page and external features"`
	Resolver string        `help:"DNS server used with --enrich" env:"DNS_RESOLVER"`
	Timeout  time.Duration `help:"Enrichment timeout per URL" default:"10s"`
	JSON     bool          `help:"Print JSON lines instead of a table"`
	URLs     []string      `arg:"" name:"url" help:"URLs to classify"`
}

func (c *PredictCmd) Run(g *Globals) error {
	svc, err := newService(g, c.Model, c.Enrich, c.Resolver, c.Timeout)
	if err != nil {
		return err
	}
	ctx := context.Background()
	enc := json.NewEncoder(g.out)
	for _, u := range c.URLs {
		res, err := svc.Predict(ctx, predict.Request{URL: u, Enrich: c.Enrich})
		if err != nil {
			return fmt.Errorf("%s: %w", u, err)
		}
		if c.JSON {
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(g.out, "%-10s %.3f  %s\n", res.Prediction, res.Probability, u)
	}
	return nil
}

// BatchCmd classifies every URL of a CSV file and writes a CSV of verdicts.
type BatchCmd struct {
	Model   string `help:"Model artifact (JSON, optionally gzip)" default:"model.json" type:"existingfile" env:"MODEL_PATH"`
	Input   string `arg:"" help:"CSV file with a url column, or one URL per line; - for stdin"`
	Output  string `short:"o" help:"Output CSV file (default stdout)"`
	Column  string `help:"Name of the URL column" default:"url"`
	Workers int    `short:"c" help:"Number of concurrent workers" default:"8"`
	Quiet   bool   `short:"q" help:"Hide the progress spinner"`
}

func (c *BatchCmd) Run(g *Globals) error {
	svc, err := newService(g, c.Model, false, "", 0)
	if err != nil {
		return err
	}

	in, err := openInput(c.Input)
	if err != nil {
		return err
	}
	defer in.Close()
	urls, err := readURLs(in, c.Column)
	if err != nil {
		return err
	}
	g.logger.Debug("read input", "urls", len(urls))

	out := g.out
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	var s *spinner.Spinner
	var done atomic.Int64
	if !c.Quiet {
		s = spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = fmt.Sprintf(" classifying %d URLs", len(urls))
		s.Start()
	}

	rows := make([][]string, len(urls))
	var eg errgroup.Group
	eg.SetLimit(max(c.Workers, 1))
	for i, u := range urls {
		eg.Go(func() error {
			res, err := svc.Predict(context.Background(), predict.Request{URL: u})
			if err != nil {
				rows[i] = []string{u, "", "", err.Error()}
			} else {
				rows[i] = []string{u, res.Prediction, strconv.FormatFloat(res.Probability, 'f', 4, 64), ""}
			}
			n := done.Add(1)
			if s != nil {
				s.Lock()
				s.Suffix = fmt.Sprintf(" classified %d/%d", n, len(urls))
				s.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	if s != nil {
		s.Stop()
	}

	w := csv.NewWriter(out)
	w.Write([]string{"url", "prediction", "probability", "error"})
	w.WriteAll(rows)
	if err := w.Error(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	phishing := 0
	for _, r := range rows {
		if r[1] == string(model.Phishing) {
			phishing++
		}
	}
	g.logger.Info("batch complete", "urls", len(urls), "phishing", phishing)
	return nil
}

// SchemaCmd writes the ordered feature names.
type SchemaCmd struct {
	Output string `short:"o" help:"Output file (default stdout)"`
}

func (c *SchemaCmd) Run(g *Globals) error {
	if c.Output == "" {
		return features.WriteSchema(g.out)
	}
	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	if err := features.WriteSchema(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// VerifyCmd checks artifacts the server would refuse to start with.
type VerifyCmd struct {
	Model      string `help:"Model artifact to check" type:"existingfile" env:"MODEL_PATH"`
	SchemaFile string `help:"Schema file to check" type:"existingfile" env:"SCHEMA_FILE"`
}

func (c *VerifyCmd) Run(g *Globals) error {
	if c.Model == "" && c.SchemaFile == "" {
		return errors.New("nothing to verify: pass --model and/or --schema-file")
	}
	if c.SchemaFile != "" {
		if err := features.VerifySchemaFile(c.SchemaFile); err != nil {
			return err
		}
		fmt.Fprintf(g.out, "schema file %s: ok (%s)\n", c.SchemaFile, features.SchemaVersion)
	}
	if c.Model != "" {
		m, err := model.Load(c.Model)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out, "model %s: ok (%s, %d trees)\n", c.Model, m.Schema(), m.NumTrees())
		if meta := m.Metadata(); len(meta) > 0 {
			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(g.out, "  %s: %v\n", k, meta[k])
			}
		}
	}
	return nil
}

func newService(g *Globals, modelPath string, withEnrich bool, resolver string, timeout time.Duration) (*predict.Service, error) {
	ex, err := g.extractor()
	if err != nil {
		return nil, err
	}
	m, err := model.Load(modelPath)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("model loaded", "path", modelPath, "trees", m.NumTrees())

	var chain *enrich.Chain
	if withEnrich {
		chain = enrich.NewChain(timeout, g.logger,
			enrich.NewContent(enrich.ContentOptions{Timeout: timeout}),
			enrich.NewDNS(resolver, 0, ex.Keywords()),
		)
	}
	return predict.New(predict.Options{
		Model:     m,
		Extractor: ex,
		Chain:     chain,
		Logger:    g.logger,
	}), nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// readURLs reads a CSV whose header names column. Input whose first line
// has no such column is read as one URL per line, so commas and quotes in
// URLs are kept.
func readURLs(r io.Reader, column string) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("input is empty")
	}

	header, _, _ := bytes.Cut(data, []byte("\n"))
	col := headerColumn(string(header), column)
	var urls []string
	if col < 0 {
		urls, err = readLines(data)
	} else {
		urls, err = readColumn(data, col)
	}
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, errors.New("input has no URLs")
	}
	return urls, nil
}

func headerColumn(header, column string) int {
	for i, name := range strings.Split(header, ",") {
		name = strings.Trim(strings.TrimSpace(name), `"`)
		if strings.EqualFold(name, column) {
			return i
		}
	}
	return -1
}

func readLines(data []byte) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if u := strings.TrimSpace(sc.Text()); u != "" {
			urls = append(urls, u)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return urls, nil
}

func readColumn(data []byte, col int) ([]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	var urls []string
	for _, rec := range records[1:] {
		if col < len(rec) {
			if u := strings.TrimSpace(rec[col]); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls, nil
}
