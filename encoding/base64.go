// Package encoding provides small JSON-safe wrappers for byte slices that
// travel through the transcoder as ordinary JSON values.
package encoding

import "encoding/base64"

// Base64 is a byte slice that marshals to/from JSON as a standard base64
// string (the same form encoding/json gives a plain []byte), with nil
// rendered as null.
type Base64 []byte

func (b Base64) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte(`null`), nil
	}
	s := base64.StdEncoding.EncodeToString(b)
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	out = append(out, s...)
	out = append(out, '"')
	return out, nil
}

func (b *Base64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return base64.CorruptInputError(0)
	}
	decoded, err := base64.StdEncoding.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}
