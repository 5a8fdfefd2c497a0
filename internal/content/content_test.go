package content_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/content"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/types"
)

const helloCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestPointerRoundTrip(t *testing.T) {
	ptr, err := content.PointerFromCID(helloCID)
	require.NoError(t, err)
	require.False(t, types.IsZeroHash(ptr))
	require.Equal(t, helloCID, content.CIDFromPointer(ptr))

	require.True(t, content.ValidCID(helloCID))
	for _, bad := range []string{"", "Qm", "0OIl", helloCID[:20],
		"bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"} {
		require.False(t, content.ValidCID(bad), bad)
	}
}

func TestHTTPStore(t *testing.T) {
	ptr, err := content.PointerFromCID(helloCID)
	require.NoError(t, err)

	pinned := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch {
		case r.URL.Path == "/api/v0/cat" && r.URL.Query().Get("arg") == helloCID:
			_, _ = w.Write([]byte(`{"data":[]}`))
		case r.URL.Path == "/api/v0/pin/add" && r.URL.Query().Get("arg") == helloCID:
			pinned = true
			_, _ = w.Write([]byte(`{"Pins":["` + helloCID + `"]}`))
		default:
			http.Error(w, "merkledag: not found", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cfg := config.TestContentConfig()
	cfg.APIAddress = srv.URL + "/"
	store := content.NewHTTPStore(log.NewTestingLogger(t), cfg)
	ctx := context.Background()

	body, err := store.Fetch(ctx, ptr)
	require.NoError(t, err)
	require.JSONEq(t, `{"data":[]}`, string(body))

	require.NoError(t, store.Pin(ctx, ptr))
	require.True(t, pinned)

	_, err = store.Fetch(ctx, types.Hash{0x01})
	require.Error(t, err)

	_, err = store.Fetch(ctx, types.ZeroHash)
	require.ErrorIs(t, err, content.ErrZeroPointer)
	require.ErrorIs(t, store.Pin(ctx, types.ZeroHash), content.ErrZeroPointer)
}

func TestHTTPStoreSizeLimit(t *testing.T) {
	ptr, err := content.PointerFromCID(helloCID)
	require.NoError(t, err)

	payload := []byte(`{"data":[]}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	cfg := config.TestContentConfig()
	cfg.APIAddress = srv.URL
	ctx := context.Background()

	exact := content.NewHTTPStore(log.NewTestingLogger(t), cfg, content.WithMaxSize(int64(len(payload))))
	body, err := exact.Fetch(ctx, ptr)
	require.NoError(t, err)
	require.Equal(t, payload, body)

	small := content.NewHTTPStore(log.NewTestingLogger(t), cfg, content.WithMaxSize(int64(len(payload)-1)))
	_, err = small.Fetch(ctx, ptr)
	require.ErrorIs(t, err, content.ErrTooLarge)
}
