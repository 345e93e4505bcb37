package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	ValidationsTotal.WithLabelValues("valid").Inc()
	BoundaryRegions.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `healthmap_validations_total{outcome="valid"}`)
	assert.Contains(t, string(body), "healthmap_boundary_regions 3")
	assert.InDelta(t, 3.0, testutil.ToFloat64(BoundaryRegions), 1e-9)
}
