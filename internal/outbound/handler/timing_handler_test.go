package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/getsentry/repro/internal/outbound"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	calls atomic.Int32
}

func (ct *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ct.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Header:     http.Header{},
		Request:    req,
	}, nil
}

func TestMultipleRequestsHandler(t *testing.T) {
	t.Run("Always makes exactly three sequential calls", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		transport := &countingTransport{}
		client := outbound.NewClient("http://remote/delay/1", transport, logger)

		rec := httptest.NewRecorder()
		MultipleRequestsHandler(client, logger)(rec, httptest.NewRequest(http.MethodGet, "/multiple-requests", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body MultipleRequestsResponseDTO
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 3, MultipleRequestCount)
		assert.EqualValues(t, 3, transport.calls.Load())
		require.Len(t, body.Results, 3)
		for i, result := range body.Results {
			assert.Equal(t, i+1, result.Request)
			assert.Equal(t, http.StatusOK, result.Status)
		}
		assert.Contains(t, body.Message, "Made 3 requests to http://remote/delay/1")
	})
}
