package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/vdatasim/vdatasim/vdsim/array"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

func newTestServer(t *testing.T) *mux.Router {
	t.Helper()
	conf := topology.Config{
		DomainCount:         3,
		DrivesPerDomain:     10,
		GroupSizes:          []int{3, 2},
		SpareCount:          2,
		DriveSize:           8 * 512,
		ChunkSize:           512,
		HAEligiblePerDomain: 2,
	}
	a, err := array.Initialize(array.Options{Conf: conf, Mode: topology.ModeNormal})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	r := mux.NewRouter()
	NewArrayServer(r, &ArrayServerOption{}, a)
	return r
}

func do(t *testing.T, r *mux.Router, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	r := newTestServer(t)
	payload := bytes.Repeat([]byte("vdsim"), 700)

	rec := do(t, r, http.MethodPost, "/files?name=sample.bin", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/files/sample.bin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, payload, rec.Body.Bytes())

	rec = do(t, r, http.MethodGet, "/files/missing.bin", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRequiresName(t *testing.T) {
	r := newTestServer(t)
	rec := do(t, r, http.MethodPost, "/files", []byte("x"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGridView(t *testing.T) {
	r := newTestServer(t)
	rec := do(t, r, http.MethodGet, "/grid", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var grid struct {
		Mode    string
		Domains []struct {
			Name   string
			Drives []struct {
				Role   string
				Online bool
			}
		}
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	require.Equal(t, "normal", grid.Mode)
	require.Len(t, grid.Domains, 3)
	require.Len(t, grid.Domains[0].Drives, 10)
	require.Equal(t, "data", grid.Domains[0].Drives[0].Role)
	require.True(t, grid.Domains[0].Drives[0].Online)
}

func TestFailureAndIntegrityFlow(t *testing.T) {
	r := newTestServer(t)
	_ = do(t, r, http.MethodPost, "/files?name=f.bin", bytes.Repeat([]byte{7}, 2000))

	rec := do(t, r, http.MethodPost, "/drives/0?online=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, "/drives/0/peek?offset=0&size=16", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodGet, "/integrity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct{ Rollup string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, "RECOVERABLE", report.Rollup)

	rec = do(t, r, http.MethodPost, "/rebuild?drives=0&strategy=restore_in_place", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rebuild struct {
		Partial bool
		Drives  []struct{ Outcome int }
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rebuild))
	require.False(t, rebuild.Partial)
	require.Len(t, rebuild.Drives, 1)

	rec = do(t, r, http.MethodGet, "/integrity", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, "OK", report.Rollup)
}

func TestDriveHandlerValidation(t *testing.T) {
	r := newTestServer(t)

	rec := do(t, r, http.MethodPost, "/drives/999?online=false", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodPost, "/drives/0?online=maybe", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPeekShowsDriveBytes(t *testing.T) {
	r := newTestServer(t)
	_ = do(t, r, http.MethodPost, "/files?name=f.bin", bytes.Repeat([]byte{0xAB}, 600))

	rec := do(t, r, http.MethodGet, "/drives/0/peek?offset=0&size=32", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var peek struct {
		Drive int
		Hex   string `json:"hex"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peek))
	require.NotEmpty(t, peek.Hex)
}
