package store

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// BlobToDataURL encodes raw image bytes as a self-contained data-URL string,
// sniffing the media type from the payload. This is the form image fields
// take when they cross the storage boundary.
func BlobToDataURL(blob []byte) string {
	mediaType := http.DetectContentType(blob)
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(blob)
}

// DataURLToBlob decodes a data-URL back into the exact bytes it was built
// from. Both base64 and percent-encoded payloads are accepted.
func DataURLToBlob(dataURL string) ([]byte, error) {
	const prefix = "data:"
	if !strings.HasPrefix(dataURL, prefix) {
		return nil, fmt.Errorf("not a data URL")
	}

	rest := dataURL[len(prefix):]
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL: missing comma")
	}

	meta, payload := rest[:comma], rest[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		blob, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("malformed data URL: %w", err)
		}
		return blob, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed data URL: %w", err)
	}
	return []byte(decoded), nil
}
