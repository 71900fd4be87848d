package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/geeharvest/internal/infra/httpx"
)

const catalogPath = "/earth-engine/datasets/catalog"

func newCatalogServer(t *testing.T, status int, body []byte, uas *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(catalogPath, func(w http.ResponseWriter, r *http.Request) {
		if uas != nil {
			uas.Store(r.UserAgent())
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestList_ParsesCards(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "catalog.html"))
	require.NoError(t, err)
	var ua atomic.Value
	srv := newCatalogServer(t, http.StatusOK, body, &ua)

	tr, err := httpx.NewTransport(httpx.Options{})
	require.NoError(t, err)

	stubs, err := List(context.Background(), Options{CatalogURL: srv.URL + catalogPath, Transport: tr})
	require.NoError(t, err)
	require.Len(t, stubs, 2)

	first := stubs[0]
	require.Equal(t, srv.URL+"/earth-engine/datasets/catalog/AAFC_ACI", first.URL)
	require.Equal(t, "Canada AAFC Annual Crop Inventory", *first.Title)
	require.Equal(t, "Starting in 2009, the Earth Observation Team of the Science and Technology Branch (STB) at AAFC began generating annual crop type digital maps.", *first.Description)
	require.Equal(t, []string{"agriculture", "canada", "crop"}, first.Tags)

	second := stubs[1]
	require.Equal(t, srv.URL+"/earth-engine/datasets/catalog/MODIS_061_MOD13A1", second.URL)
	require.Nil(t, second.Description)
	require.NotNil(t, second.Tags)
	require.Empty(t, second.Tags)

	// 未指定 UA 时由 httpx 的 UA 池决定，而不是 colly 默认值。
	require.NotContains(t, ua.Load().(string), "colly")
}

func TestList_CustomUserAgent(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "catalog.html"))
	require.NoError(t, err)
	var ua atomic.Value
	srv := newCatalogServer(t, http.StatusOK, body, &ua)

	_, err = List(context.Background(), Options{CatalogURL: srv.URL + catalogPath, UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)
	require.Equal(t, "Mozilla/5.0", ua.Load().(string))
}

func TestList_HTTPError(t *testing.T) {
	srv := newCatalogServer(t, http.StatusServiceUnavailable, []byte("down"), nil)

	_, err := List(context.Background(), Options{CatalogURL: srv.URL + catalogPath})
	require.Error(t, err)
}

func TestList_NoCards(t *testing.T) {
	srv := newCatalogServer(t, http.StatusOK, []byte("<html><body><p>maintenance</p></body></html>"), nil)

	_, err := List(context.Background(), Options{CatalogURL: srv.URL + catalogPath})
	require.Error(t, err)
}

func TestList_InvalidURL(t *testing.T) {
	_, err := List(context.Background(), Options{CatalogURL: "catalog"})
	require.Error(t, err)
}
