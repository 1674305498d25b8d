package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestkiosk/guestkiosk/pkg/store"
)

func testServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "guestkiosk.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	shell := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "shell")
	})
	s := New(st, shell, "hunter2")
	return s, s.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSubmitAndListEntries(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/entries", store.NewEntry{
		Name:        "Jane Doe",
		Designation: "Engineer",
		Signature:   "data:image/png;base64,AA==",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created store.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotZero(t, created.ID)
	assert.False(t, created.Timestamp.IsZero())

	w = doJSON(t, h, http.MethodGet, "/api/entries", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []store.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Jane Doe", entries[0].Name)
	assert.Empty(t, entries[0].Photo)
}

func TestSubmitEntry_RequiresSignature(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/entries", store.NewEntry{Name: "No Sig"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEntry_Missing404(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodGet, "/api/entries/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEntry_Idempotent(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/entries", store.NewEntry{Signature: "sig"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created store.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))

	path := fmt.Sprintf("/api/entries/%d", created.ID)
	assert.Equal(t, http.StatusNoContent, doJSON(t, h, http.MethodDelete, path, nil, nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(t, h, http.MethodDelete, path, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, path, nil, nil).Code)
}

func TestPurgeEntries_Gated(t *testing.T) {
	_, h := testServer(t)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated,
			doJSON(t, h, http.MethodPost, "/api/entries", store.NewEntry{Signature: "sig"}, nil).Code)
	}
	require.Equal(t, http.StatusCreated,
		doJSON(t, h, http.MethodPost, "/api/visitors", store.NewVisitor{Name: "Ada"}, nil).Code)

	// Wrong password
	w := doJSON(t, h, http.MethodDelete, "/api/entries?confirm=yes", nil, map[string]string{"X-Delete-Password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Right password, no confirmation
	w = doJSON(t, h, http.MethodDelete, "/api/entries", nil, map[string]string{"X-Delete-Password": "hunter2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Both steps
	w = doJSON(t, h, http.MethodDelete, "/api/entries?confirm=yes", nil, map[string]string{"X-Delete-Password": "hunter2"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/entries/count", nil, nil)
	var count map[string]int64
	require.NoError(t, json.NewDecoder(w.Body).Decode(&count))
	assert.Zero(t, count["count"])

	// Visitors survive the purge.
	w = doJSON(t, h, http.MethodGet, "/api/visitors", nil, nil)
	var visitors []store.Visitor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&visitors))
	assert.Len(t, visitors, 1)
}

func TestAddVisitor_RequiresName(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/visitors", store.NewVisitor{Designation: "Guest"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShellTrafficGoesToGateway(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodGet, "/index.html", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shell", w.Body.String())
}

func TestAdminPage_RequiresPassword(t *testing.T) {
	_, h := testServer(t)

	w := doJSON(t, h, http.MethodGet, "/admin", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.SetBasicAuth("admin", "hunter2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Guestbook entries")
}
