package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/3leaps/gonimbus/internal/apperrors"
	"github.com/3leaps/gonimbus/internal/core"
	"github.com/3leaps/gonimbus/pkg/provider"
)

func writeJSONBody(w http.ResponseWriter, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// HTTPErrorResponder renders err as an HTTP response.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = defaultHTTPErrorResponder

// SetHTTPErrorResponder overrides how operation handlers render a
// returned error, primarily for tests. A nil responder resets to the
// default apperrors-based mapping.
func SetHTTPErrorResponder(r HTTPErrorResponder) {
	if r == nil {
		httpErrorResponder = defaultHTTPErrorResponder
		return
	}
	httpErrorResponder = r
}

// ResetHTTPErrorResponder restores the default responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

// RespondWithError renders err through the currently configured
// HTTPErrorResponder. Exported for use by internal/server's operation
// handlers outside this package.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, err)
}

// defaultHTTPErrorResponder maps internal/core's sentinel errors and the
// provider's sentinel errors onto the operation surface's stable error
// codes, falling back to 500/INTERNAL for anything
// unrecognized.
func defaultHTTPErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case core.IsIndexingAlreadyInProgress(err):
		apperrors.WriteJSON(w, http.StatusConflict, apperrors.CodeAlreadyInProgress, err.Error())
	case core.IsNoSuchIndexingJob(err):
		apperrors.WriteJSON(w, http.StatusNotFound, apperrors.CodeNotFound, err.Error())
	case core.IsUnknownProfile(err):
		apperrors.WriteJSON(w, http.StatusBadRequest, apperrors.CodeInvalidArgument, err.Error())
	case provider.IsNotFound(err):
		apperrors.WriteJSON(w, http.StatusNotFound, apperrors.CodeNotFound, err.Error())
	case provider.IsAccessDenied(err):
		apperrors.WriteJSON(w, http.StatusForbidden, apperrors.CodeProviderError, err.Error())
	case provider.IsThrottled(err):
		apperrors.WriteJSON(w, http.StatusTooManyRequests, apperrors.CodeProviderError, err.Error())
	case errors.As(err, new(*provider.ProviderError)):
		apperrors.WriteJSON(w, http.StatusBadGateway, apperrors.CodeProviderError, err.Error())
	default:
		apperrors.WriteJSON(w, http.StatusInternalServerError, apperrors.CodeInternal, err.Error())
	}
}
