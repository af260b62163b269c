package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("dossiers: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ErrValidation), http.StatusBadRequest},
		{ErrDuplicate, http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.code, rr.Code, tc.err.Error())
		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		assert.Equal(t, tc.code, problem.Status)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":1}`))
	err := DecodeJSON(req, &target)
	assert.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "ok", target.Name)
}

func TestUUIDParam(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	got, err := UUIDParam(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = UUIDParam(req, "missing")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?year=2025&bad=x", nil)
	year, err := IntQuery(req, "year", 2000)
	require.NoError(t, err)
	assert.Equal(t, 2025, year)

	def, err := IntQuery(req, "absent", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, def)

	_, err = IntQuery(req, "bad", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidatorReportsJSONFieldNames(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required"`
		Day  int    `json:"vat_due_day" validate:"min=15,max=25"`
	}
	v := NewValidator()

	rr := httptest.NewRecorder()
	assert.False(t, v.Check(rr, input{Day: 30}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "required", problem.Fields["name"])
	assert.Equal(t, "max", problem.Fields["vat_due_day"])

	assert.True(t, v.Check(httptest.NewRecorder(), input{Name: "x", Day: 21}))
}
