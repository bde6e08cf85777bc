package output

import (
	"encoding/json"
)

// JSONFormatter renders views as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatLedger(view *LedgerView) (string, error) {
	return f.marshal(view)
}

func (f *JSONFormatter) FormatReply(view *ReplyView) (string, error) {
	return f.marshal(view)
}

func (f *JSONFormatter) marshal(value interface{}) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
