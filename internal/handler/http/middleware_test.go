package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantCode    int
	}{
		{"json body", `{"username":"alice"}`, "application/json", http.StatusOK},
		{"json with charset", `{"username":"alice"}`, "application/json; charset=utf-8", http.StatusOK},
		{"body without content type", `{"username":"alice"}`, "", http.StatusUnsupportedMediaType},
		{"form body", `username=alice`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"no body", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			var req *http.Request
			if tt.body == "" {
				req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", nil)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body))
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, called)
		})
	}
}

func TestDecode_BodyTooLarge(t *testing.T) {
	body := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `","password":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rr := httptest.NewRecorder()

	var dst LoginRequest
	assert.False(t, decode(rr, req, &dst))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
