package fetch

import (
	"fmt"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeBody converts an HTML body to UTF-8. A forced label wins; otherwise
// the encoding comes from a byte order mark, the Content-Type header, a
// <meta> declaration, UTF-8 validity and finally windows-1252, which is how
// browsers read pages labelled iso-8859-1.
func decodeBody(body []byte, contentType, forced string) (string, string, error) {
	var (
		enc  encoding.Encoding
		name string
	)

	if forced != "" {
		var err error
		enc, err = htmlindex.Get(forced)
		if err != nil {
			return "", "", fmt.Errorf("unknown charset %q: %w", forced, err)
		}
		if name, err = htmlindex.Name(enc); err != nil {
			name = forced
		}
	} else {
		enc, name, _ = charset.DetermineEncoding(body, contentType)
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", name, fmt.Errorf("decoding %s body: %w", name, err)
	}
	return string(decoded), name, nil
}

// DecodeHTML converts an HTML document read from disk to UTF-8, detecting
// the encoding from its <meta> declaration unless forced is set. It returns
// the decoded text and the encoding name.
func DecodeHTML(body []byte, forced string) (string, string, error) {
	return decodeBody(body, "text/html", forced)
}
