package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"medisupply/internal/platform/config"
	"medisupply/pkg/testutil"
)

func TestRouterScaffold(t *testing.T) {
	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := build(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	router := newRouter(app, log)

	testutil.Given(t, "the in-memory server with demo data", func(t *testing.T) {
		testutil.When(t, "calling GET /health", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))

			testutil.Then(t, "it should report ok", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
				testutil.AssertJSONContains(t, rec, "status", "ok")
			})
			testutil.And(t, "it should list the checked backends", func(t *testing.T) {
				testutil.AssertJSONHasKey(t, rec, "backends")
			})
		})

		testutil.When(t, "calling GET /inventory/products for a seeded product", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet,
				"/inventory/products/"+demoProducts[0].ID.String()))

			testutil.Then(t, "it should sum both seeded lots", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
				testutil.AssertJSONContains(t, rec, "available", float64(700))
			})
		})

		testutil.When(t, "calling GET /compliance/periods", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/compliance/periods"))

			testutil.Then(t, "it should respond with ok", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
			})
		})

		testutil.When(t, "calling GET /orders with a malformed id", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/orders/not-a-uuid"))

			testutil.Then(t, "it should respond with bad request", func(t *testing.T) {
				testutil.AssertStatus(t, rec, http.StatusBadRequest)
			})
		})

		testutil.When(t, "calling an unknown route", func(t *testing.T) {
			rec := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/auth/authorize"))

			testutil.Then(t, "it should respond with not found", func(t *testing.T) {
				testutil.AssertStatus(t, rec, http.StatusNotFound)
			})
		})
	})
}
