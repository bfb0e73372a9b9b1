package features

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadSchema reads feature names, one per line. Blank lines and lines
// starting with # are skipped.
func ReadSchema(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return names, nil
}

// VerifySchemaFile checks that the file at path lists exactly the compiled schema.
func VerifySchemaFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()
	names, err := ReadSchema(f)
	if err != nil {
		return err
	}
	return CheckNames(names)
}

// WriteSchema writes the compiled schema in the format ReadSchema accepts.
func WriteSchema(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s\n", SchemaVersion); err != nil {
		return err
	}
	for _, n := range Names {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}
