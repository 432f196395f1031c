package handlers

import (
	"errors"
	"net/http"
	"testing"

	"event-sphere/internal/status"

	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToApiError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing event", status.ErrNotFound, http.StatusNotFound},
		{"wrapped missing event", status.IOError("load event", status.ErrNotFound), http.StatusNotFound},
		{"not authenticated", status.ErrNotAuthenticated, http.StatusUnauthorized},
		{"not authorized", status.ErrNotAuthorized, http.StatusForbidden},
		{"storage outage", status.IOError("save attendance", errors.New("disk on fire")), http.StatusServiceUnavailable},
		{"anything else", errors.New("unexpected"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toApiError(tt.err)

			var apiErr *router.ApiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
		})
	}
}
