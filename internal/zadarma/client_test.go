package zadarma

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthorizationShape(t *testing.T) {
	c := New("322168f1b94be856f0de", "ae4b189367a9f6de88b3", "0733103110")

	auth := c.authorization("/v1/request/callback/", "format=json&from=0733103110&to=0930063585")

	key, sig, ok := strings.Cut(auth, ":")
	if !ok {
		t.Fatalf("expected key:signature, got %q", auth)
	}
	if key != "322168f1b94be856f0de" {
		t.Errorf("expected key prefix, got %q", key)
	}

	// The signature is the base64 of a hex-encoded HMAC-SHA1 digest:
	// decoding must yield exactly 40 hex characters.
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	if len(raw) != 40 {
		t.Fatalf("expected 40-char hex digest, got %d chars", len(raw))
	}
	if _, err := hex.DecodeString(string(raw)); err != nil {
		t.Errorf("digest is not hex: %v", err)
	}
}

func TestAuthorizationIsDeterministic(t *testing.T) {
	c := New("key", "secret", "0733103110")

	a := c.authorization("/v1/request/callback/", "format=json&from=0733103110&to=0930063585")
	b := c.authorization("/v1/request/callback/", "format=json&from=0733103110&to=0930063585")
	if a != b {
		t.Error("expected identical signatures for identical input")
	}

	other := c.authorization("/v1/request/callback/", "format=json&from=0733103110&to=0637442017")
	if a == other {
		t.Error("expected different signatures for different params")
	}
}

func TestRequestCallbackAccepted(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"status":"success","from":"0733103110","to":"0930063585"}`))
	}))
	defer srv.Close()

	c := New("key", "secret", "0733103110", WithBaseURL(srv.URL))
	if err := c.RequestCallback(context.Background(), "0930063585"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/request/callback/" {
		t.Errorf("expected callback path, got %s", gotPath)
	}
	// Params must arrive sorted; the signature is computed over this order.
	if gotQuery != "format=json&from=0733103110&to=0930063585" {
		t.Errorf("unexpected query: %s", gotQuery)
	}
	if !strings.HasPrefix(gotAuth, "key:") {
		t.Errorf("expected Authorization header key:..., got %q", gotAuth)
	}
}

func TestRequestCallbackRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"no money"}`))
	}))
	defer srv.Close()

	c := New("key", "secret", "0733103110", WithBaseURL(srv.URL))
	err := c.RequestCallback(context.Background(), "0930063585")
	if err == nil {
		t.Fatal("expected error for rejected callback")
	}
	if !strings.Contains(err.Error(), "no money") {
		t.Errorf("expected provider message in error, got %v", err)
	}
}

func TestRequestCallbackHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("key", "secret", "0733103110", WithBaseURL(srv.URL))
	if err := c.RequestCallback(context.Background(), "0930063585"); err == nil {
		t.Fatal("expected error for HTTP 401")
	}
}
