package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicum-hub/practicum/internal/app"
	"github.com/practicum-hub/practicum/internal/registration"
	"github.com/practicum-hub/practicum/internal/registration/remote"
	"github.com/practicum-hub/practicum/internal/registration/storage"
	_ "github.com/practicum-hub/practicum/testing"
)

func TestRunServeSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	assert.Zero(t, run(context.Background(), nil, io.Discard, io.Discard))
	assert.Zero(t, run(context.Background(), []string{"serve"}, io.Discard, io.Discard))
}

func TestRunTaxID(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := run(context.Background(), []string{"taxid", "-json", "8600077593"}, stdout, io.Discard)
	assert.Zero(t, code)
	assert.Contains(t, stdout.String(), `"valid": true`)

	assert.Equal(t, 2, run(context.Background(), []string{"taxid", "-bogus"}, io.Discard, io.Discard))
}

func TestRunUnknownCommand(t *testing.T) {
	stderr := new(bytes.Buffer)
	assert.Equal(t, 2, run(context.Background(), []string{"migrate"}, io.Discard, stderr))
	assert.Contains(t, stderr.String(), "usage: practicum")
}

func TestRunPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("BACKEND_BASE_URL", srv.URL)
	t.Setenv("CSRF_SECRET", "secret")

	stdout := new(bytes.Buffer)
	assert.Zero(t, run(context.Background(), []string{"ping", "-timeout", "1s"}, stdout, io.Discard))
	assert.Contains(t, stdout.String(), "backend ok")
}

func TestOpenDraftStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	for _, driver := range []string{app.DraftDriverMemory, app.DraftDriverFile, app.DraftDriverRedis} {
		t.Run(driver, func(t *testing.T) {
			cfg := &app.Config{DraftDriver: driver, DraftDir: t.TempDir(), DraftTTL: time.Hour}
			drafts, err := openDraftStorage(ctx, cfg, client)
			require.NoError(t, err)
			defer drafts.close()

			require.NoError(t, drafts.storage.Set(ctx, "k-"+driver, []byte("v")))
			got, err := drafts.storage.Get(ctx, "k-"+driver)
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)
		})
	}
	assert.True(t, mr.Exists("practicum:draft:k-redis"))

	_, err := openDraftStorage(ctx, &app.Config{DraftDriver: "sqlite"}, client)
	assert.Error(t, err)
}

func TestNewRegistryWiresBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cities":
			_ = json.NewEncoder(w).Encode([]registration.City{{ID: 11001, Name: "Bogotá", RegionName: "Cundinamarca"}})
		case "/faculties/3/programs":
			_ = json.NewEncoder(w).Encode([]registration.Program{{ID: 7, Name: "Derecho", FacultyID: 3}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := remote.NewClient(srv.URL, time.Second, logger)
	require.NoError(t, err)

	cfg := &app.Config{CityLookupDelay: time.Millisecond, ProgramLookupDelay: time.Millisecond}
	registry := newRegistry(cfg, storage.NewMemory(), backend, logger)
	t.Cleanup(registry.Close)

	ws := registry.Workspace(context.Background(), "session-1")
	require.NotNil(t, ws.Wizard)
	require.NotNil(t, ws.Programs)

	ws.Wizard.SearchCity(registration.OrganizationCity, "bog")
	require.Eventually(t, func() bool {
		return len(ws.Wizard.CitySuggestions(registration.OrganizationCity).Items) == 1
	}, time.Second, 5*time.Millisecond)

	ws.Programs.SetFaculty(3)
	ws.Programs.Search("der")
	require.Eventually(t, func() bool { return len(ws.Programs.Result().Items) == 1 }, time.Second, 5*time.Millisecond)
}
