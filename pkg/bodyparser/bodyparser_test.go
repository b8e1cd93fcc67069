package bodyparser

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{nil, DefaultLimit, false},
		{0, DefaultLimit, false},
		{1024, 1024, false},
		{float64(4096), 4096, false},
		{"2MiB", 2097152, false},
		{"1kb", 1000, false},
		{"", DefaultLimit, false},
		{"lots", 0, true},
		{-1, 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLimit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestNew_DefaultLimit(t *testing.T) {
	p, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2097152), p.Limit())
}

func TestMiddleware_JSON(t *testing.T) {
	p, err := New(Options{Limit: 64})
	require.NoError(t, err)

	var got struct{ Name string }
	var raw []byte
	h := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, Decode(r, &got))
		raw, _ = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ada"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "ada", got.Name)
	assert.Equal(t, `{"name":"ada"}`, string(raw))
}

func TestMiddleware_Rejections(t *testing.T) {
	p, err := New(Options{Limit: 16})
	require.NoError(t, err)
	called := false
	h := p.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	tests := []struct {
		body string
		want int
	}{
		{`{"name":"far too long for the limit"}`, http.StatusRequestEntityTooLarge},
		{`{"name":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.body)
	}
	assert.False(t, called)
}

func TestMiddleware_Forms(t *testing.T) {
	p, err := New(Options{})
	require.NoError(t, err)

	var name, upload string
	h := p.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name = r.PostForm.Get("name")
		if r.MultipartForm != nil {
			if fh := r.MultipartForm.File["doc"]; len(fh) == 1 {
				upload = fh[0].Filename
			}
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=grace"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "grace", name)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("name", "linus"))
	fw, err := mw.CreateFormFile("doc", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req = httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "linus", name)
	assert.Equal(t, "notes.txt", upload)
}

func TestMiddleware_SkipsBodylessMethods(t *testing.T) {
	p, err := New(Options{Limit: 1})
	require.NoError(t, err)
	called := false
	h := p.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
