package format

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Kind selects the output encoding.
type Kind string

const (
	KindText    Kind = "text"
	KindYAML    Kind = "yaml"
	KindMsgpack Kind = "msgpack"
)

// Kinds lists the accepted --format values.
var Kinds = []Kind{KindText, KindYAML, KindMsgpack}

// ParseKind validates a --format value.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want text, yaml or msgpack)", s)
}

// YAML writes v as a YAML document.
func YAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// Msgpack writes v as one msgpack value. Struct fields use their msgpack
// tags.
func Msgpack(w io.Writer, v interface{}) error {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode msgpack: %w", err)
	}
	return nil
}
