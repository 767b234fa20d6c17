package metastream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

func TestFetchAggregators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AggregatorsPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"kyber","displayName":"KyberSwap","logoUrl":"https://logo/k.png"},{"id":"odos","displayName":"Odos","logoUrl":""}]`))
	}))
	defer srv.Close()

	c := NewDirectoryClient(srv.URL+"/", time.Second)
	metas, err := c.FetchAggregators(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, domain.ProviderMeta{ID: "kyber", DisplayName: "KyberSwap", LogoURL: "https://logo/k.png"}, metas[0])
}

func TestFetchAggregatorsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDirectoryClient(srv.URL, time.Second).FetchAggregators(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchAggregatorsBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	_, err := NewDirectoryClient(srv.URL, time.Second).FetchAggregators(context.Background())
	assert.Error(t, err)
}
