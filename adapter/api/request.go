package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("empty request body")

// decodeJSON decodes a JSON request body with a size cap.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathUUID parses a UUID path segment registered with the given name.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(name))
}
