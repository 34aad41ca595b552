package output

import (
	"encoding/json"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLPrinter prints YAML to stdout. Values go through JSON first so the
// keys match the json output.
type YAMLPrinter struct {
	Out io.Writer
}

// Print renders YAML output.
func (p YAMLPrinter) Print(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
