package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/3leaps/gonimbus/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestSetHTTPErrorResponder_CustomAndReset(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	called := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/test", nil), errors.New("boom"))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	SetHTTPErrorResponder(nil)
	assert.NotNil(t, httpErrorResponder)
}

func TestResetHTTPErrorResponder(t *testing.T) {
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	customCalled := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) { customCalled = true })
	ResetHTTPErrorResponder()

	rec := httptest.NewRecorder()
	respondWithError(rec, httptest.NewRequest(http.MethodGet, "/test", nil), errors.New("boom"))

	assert.False(t, customCalled)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDefaultHTTPErrorResponder_MapsCoreSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already in progress", core.ErrIndexingAlreadyInProgress, http.StatusConflict},
		{"no such job", core.ErrNoSuchIndexingJob, http.StatusNotFound},
		{"unknown profile", core.ErrUnknownProfile, http.StatusBadRequest},
		{"unrecognized", errors.New("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondWithError(rec, httptest.NewRequest(http.MethodGet, "/test", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
