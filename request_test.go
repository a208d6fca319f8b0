package oauth

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestNewRequestParsesFormBody(t *testing.T) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", "alice")
	r := httptest.NewRequest("POST", "/token?foo=bar", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := NewRequest(r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if got := req.Body.Get("grant_type"); got != "password" {
		t.Errorf("Body[grant_type] = %q, want %q", got, "password")
	}
	if got := req.Query.Get("foo"); got != "bar" {
		t.Errorf("Query[foo] = %q, want %q", got, "bar")
	}
	if !req.IsForm() {
		t.Error("IsForm() = false, want true")
	}
}

func TestNewRequestIgnoresNonFormBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/token", strings.NewReader(`{"grant_type":"password"}`))
	r.Header.Set("Content-Type", "application/json")

	req, err := NewRequest(r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if len(req.Body) != 0 {
		t.Errorf("Body = %v, want empty", req.Body)
	}
	if req.IsForm() {
		t.Error("IsForm() = true, want false")
	}
}

func TestParamPrefersBodyOverQuery(t *testing.T) {
	form := url.Values{}
	form.Set("redirect_uri", "https://body.example.com/cb")
	r := httptest.NewRequest("POST", "/authorize?redirect_uri=https%3A%2F%2Fquery.example.com%2Fcb", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := NewRequest(r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	got, oerr := req.param("redirect_uri")
	if oerr != nil {
		t.Fatalf("param() error = %v", oerr)
	}
	if got != "https://body.example.com/cb" {
		t.Errorf("param(redirect_uri) = %q, want body value", got)
	}
}

func TestDuplicatedParameterIsRejected(t *testing.T) {
	r := httptest.NewRequest("POST", "/token", strings.NewReader("code=a&code=b"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := NewRequest(r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	_, oerr := req.bodyValue("code")
	if oerr == nil {
		t.Fatal("bodyValue() error = nil, want invalid_request")
	}
	if oerr.Code != ErrorCodeInvalidRequest {
		t.Errorf("Code = %q, want %q", oerr.Code, ErrorCodeInvalidRequest)
	}
}

func TestResponseRedirect(t *testing.T) {
	resp := NewResponse()
	resp.Redirect("https://example.com/cb?code=abc")

	if !resp.IsRedirect() {
		t.Error("IsRedirect() = false, want true")
	}
	if resp.Status != 302 {
		t.Errorf("Status = %d, want 302", resp.Status)
	}
	if got := resp.Header().Get("Location"); got != "https://example.com/cb?code=abc" {
		t.Errorf("Location = %q", got)
	}
}
