package httputil

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// DecompressPayload swaps the request body for a decompressing reader
// when the client declared a compressed Content-Encoding, so handlers
// always read plain trace text.
func DecompressPayload(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		if r.Header.Get("Content-Encoding") == "br" {
			r.Body = io.NopCloser(brotli.NewReader(r.Body))
		}

		next.ServeHTTP(w, r)
	})
}
