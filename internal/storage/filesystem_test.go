package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "scenes/s1/layer-0.png", want: "scenes/s1/layer-0.png"},
		{in: "/scenes//s1/./preview.png", want: "scenes/s1/preview.png"},
		{in: `sprites\c1\walk.png`, want: "sprites/c1/walk.png"},
		{in: "../etc/passwd", wantErr: true},
		{in: "..", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestFileStoreWriteReadImport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	store, err := NewFileStore(t.TempDir(), WithPublicBaseURL("https://cdn.example.com/static/"))
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Import(ctx, "scenes/s1/layer-0.png", srv.URL+"/out.png")
	require.NoError(t, err)
	assert.Equal(t, "scenes/s1/layer-0.png", key)

	data, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = store.Import(ctx, "scenes/s1/layer-1.png", srv.URL+"/missing.png")
	assert.Error(t, err)

	_, err = store.Read(ctx, "scenes/s1/layer-1.png")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, "https://cdn.example.com/static/scenes/s1/layer-0.png", store.URL(key))
	assert.Equal(t, "https://other/x.png", store.URL("https://other/x.png"))
}
