package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicum-hub/practicum/internal/registration"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ", 0, nil)
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestSearchCities(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cities", r.URL.Path)
		assert.Equal(t, "bogotá", r.URL.Query().Get("search"))
		_, _ = io.WriteString(w, `[{"id":11001,"name":"Bogotá","region_name":"Cundinamarca"}]`)
	}))
	cities, err := client.SearchCities(context.Background(), "bogotá")
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Bogotá, Cundinamarca", cities[0].Label())
}

func TestSearchActivityCodesEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity-codes", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"id":7,"code":"6201","label":"Software"}]}`)
	}))
	codes, err := client.SearchActivityCodes(context.Background(), "620")
	require.NoError(t, err)
	assert.Equal(t, []registration.ActivityCode{{ID: 7, Code: "6201", Label: "Software"}}, codes)
}

func TestListPrograms(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/faculties/3/programs", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":30,"name":"Medicina","faculty_id":3}]`)
	}))
	programs, err := client.ListPrograms(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []registration.Program{{ID: 30, Name: "Medicina", FacultyID: 3}}, programs)
}

func TestReferenceListShapes(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalogs/sectors":
			_, _ = io.WriteString(w, `[{"value":"private","label":"Private"}]`)
		case "/catalogs/sizes":
			_, _ = io.WriteString(w, `[{"id":2,"name":"Medium"},{"id":"L","name":"Large"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	sectors, err := client.ReferenceList(ctx, registration.ListSectors)
	require.NoError(t, err)
	assert.Equal(t, []registration.Option{{Value: "private", Label: "Private"}}, sectors)

	sizes, err := client.ReferenceList(ctx, registration.ListSizes)
	require.NoError(t, err)
	assert.Equal(t, []registration.Option{{Value: "2", Label: "Medium"}, {Value: "L", Label: "Large"}}, sizes)

	_, err = client.ReferenceList(ctx, registration.ListInsurers)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestCatalogThroughClient(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/catalogs/identifier_types" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	catalog := registration.LoadCatalog(context.Background(), client, nil)
	assert.Equal(t, registration.FallbackIdentifierTypes, catalog.IdentifierTypes)
	assert.Empty(t, catalog.Sectors)
}

func TestIdenticalLookupsAreShared(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = io.WriteString(w, `[{"id":1,"name":"Cali"}]`)
	}))

	var wg sync.WaitGroup
	results := make([][]registration.City, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cities, err := client.SearchCities(context.Background(), "cali")
			assert.NoError(t, err)
			results[i] = cities
		}(i)
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, cities := range results {
		require.Len(t, cities, 1)
		assert.Equal(t, "Cali", cities[0].Name)
	}
}

func TestRegister(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/organizations/register", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ACME", r.FormValue("legal_name"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registration.RegistrationResponse{Success: true})
	}))

	body := strings.NewReader("--b\r\nContent-Disposition: form-data; name=\"legal_name\"\r\n\r\nACME\r\n--b--\r\n")
	resp, err := client.Register(context.Background(), "multipart/form-data; boundary=b", body)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestRegisterApplicationFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"NIT duplicado"}`)
	}))
	resp, err := client.Register(context.Background(), "multipart/form-data; boundary=b", strings.NewReader("--b--\r\n"))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "NIT duplicado", resp.Message)
}

func TestRegisterErrorStatusKeepsMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"success":false,"message":"La organización ya existe"}`)
	}))
	resp, err := client.Register(context.Background(), "multipart/form-data; boundary=b", strings.NewReader("--b--\r\n"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Equal(t, "La organización ya existe", resp.Message)

	outcome := registration.NewSubmitter(stubbed{resp: resp, err: err}, nil).Submit(context.Background(), registration.NewDraft(), nil)
	assert.Equal(t, "La organización ya existe", outcome.State.Message)
}

func TestRegisterGarbageOnServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `<html>bad gateway</html>`)
	}))
	resp, err := client.Register(context.Background(), "multipart/form-data; boundary=b", strings.NewReader("--b--\r\n"))
	require.Error(t, err)
	assert.Empty(t, resp.Message)
}

type stubbed struct {
	resp registration.RegistrationResponse
	err  error
}

func (s stubbed) Register(ctx context.Context, contentType string, body io.Reader) (registration.RegistrationResponse, error) {
	return s.resp, s.err
}
