package output

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"teststand/internal/record"
	"teststand/pkg/logging"
)

// DefaultYAMLFilename names output files by DUT and start time.
const DefaultYAMLFilename = "{{.dut_id}}_{{.start_time_millis}}.yaml"

// YAMLWriter writes one YAML file per test record.
type YAMLWriter struct {
	Dir      string
	Filename string
}

// NewYAMLWriter builds a writer with the default filename template.
func NewYAMLWriter(dir string) *YAMLWriter {
	return &YAMLWriter{Dir: dir, Filename: DefaultYAMLFilename}
}

func (w *YAMLWriter) Name() string { return "yaml" }

func (w *YAMLWriter) Handle(rec *record.TestRecord) error {
	base := rec.AsBaseTypes()
	path, err := renderFilename(w.Dir, w.Filename, base)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(base)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.RunID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.RunID, err)
	}
	logging.Info("output", "Wrote %s", path)
	return nil
}
