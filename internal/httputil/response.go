// Package httputil holds the response helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is negotiated through the Accept header.
const ContentTypeMsgpack = "application/x-msgpack"

// Envelope wraps every successful response.
type Envelope struct {
	Data     interface{} `json:"data" msgpack:"data"`
	Metadata Metadata    `json:"metadata" msgpack:"metadata"`
}

// Metadata accompanies the response payload.
type Metadata struct {
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
}

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	Error   string      `json:"error" msgpack:"error"`
	Details interface{} `json:"details,omitempty" msgpack:"details,omitempty"`
}

// WantsMsgpack reports whether the client asked for msgpack.
func WantsMsgpack(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), ContentTypeMsgpack)
}

// WriteData writes data inside an Envelope, as msgpack when the client asks
// for it and JSON otherwise.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data interface{}, log zerolog.Logger) {
	write(w, r, status, Envelope{
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().Format(time.RFC3339)},
	}, log)
}

// WriteError writes an error body with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string, details interface{}, log zerolog.Logger) {
	write(w, r, status, ErrorBody{Error: msg, Details: details}, log)
}

func write(w http.ResponseWriter, r *http.Request, status int, body interface{}, log zerolog.Logger) {
	if WantsMsgpack(r) {
		payload, err := msgpack.Marshal(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode msgpack response")
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(status)
		if _, err := w.Write(payload); err != nil {
			log.Error().Err(err).Msg("Failed to write msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// DecodeJSON decodes the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
