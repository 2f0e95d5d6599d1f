package docx

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeText encodes a package as standard padded base64 so that it can
// travel over text-only channels.
func EncodeText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeText reverses EncodeText. Surrounding whitespace is ignored.
func DecodeText(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode document text: %w", err)
	}
	return data, nil
}
