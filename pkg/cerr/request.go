package cerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxRequestBody = 1 << 20

// DecodeJSONRequest decodes the request body into v. An empty body leaves v
// untouched; unknown fields and malformed JSON are InvalidArgument errors.
func DecodeJSONRequest(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return NewValidationError(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
