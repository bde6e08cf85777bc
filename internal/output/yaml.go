package output

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders views as YAML documents.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatLedger(view *LedgerView) (string, error) {
	return marshalYAML(view)
}

func (f *YAMLFormatter) FormatReply(view *ReplyView) (string, error) {
	return marshalYAML(view)
}

func marshalYAML(value interface{}) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
