package output

import "fmt"

// Printer renders output to stdout.
type Printer interface {
	Print(v any) error
}

// Formats accepted by New.
const (
	FormatHuman = "human"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// New returns the printer for format.
func New(format string) (Printer, error) {
	switch format {
	case "", FormatHuman:
		return HumanPrinter{}, nil
	case FormatJSON:
		return JSONPrinter{}, nil
	case FormatYAML:
		return YAMLPrinter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
