package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"teststand/internal/record"
	"teststand/pkg/logging"
)

// DefaultJSONFilename names output files by DUT and start time.
const DefaultJSONFilename = "{{.dut_id}}_{{.start_time_millis}}.json"

// JSONWriter writes one JSON file per test record. The filename is a
// template evaluated against the record's base-types form, with sprig
// helpers available.
type JSONWriter struct {
	Dir      string
	Filename string
	Indent   bool
}

// NewJSONWriter builds a writer with the default filename template.
func NewJSONWriter(dir string) *JSONWriter {
	return &JSONWriter{Dir: dir, Filename: DefaultJSONFilename, Indent: true}
}

func (w *JSONWriter) Name() string { return "json" }

func (w *JSONWriter) Handle(rec *record.TestRecord) error {
	base := rec.AsBaseTypes()
	path, err := renderFilename(w.Dir, w.Filename, base)
	if err != nil {
		return err
	}

	var data []byte
	if w.Indent {
		data, err = json.MarshalIndent(base, "", "  ")
	} else {
		data, err = json.Marshal(base)
	}
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.RunID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.RunID, err)
	}
	logging.Info("output", "Wrote %s", path)
	return nil
}

// renderFilename evaluates the filename template and joins it to dir.
func renderFilename(dir, tmpl string, base map[string]interface{}) (string, error) {
	t, err := template.New("filename").Funcs(sprig.TxtFuncMap()).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing filename template %q: %w", tmpl, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, base); err != nil {
		return "", fmt.Errorf("rendering filename template %q: %w", tmpl, err)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir %s: %w", dir, err)
	}
	return filepath.Join(dir, buf.String()), nil
}
