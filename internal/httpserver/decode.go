package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxBodyBytes = 4 << 20

// decodeBody fills v from a JSON body, or from the JSON held in the form
// field "data" that panel clients post. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		data := strings.TrimSpace(r.FormValue("data"))
		if data == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(data), v); err != nil {
			return fmt.Errorf("invalid data field: %w", err)
		}
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
