package delay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelay(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"1", time.Second, false},
		{"0.25", 250 * time.Millisecond, false},
		{"0", 0, false},
		{"60", MaxDelay, false},
		{"1e300", MaxDelay, false},
		{"-1", 0, true},
		{"soon", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"-Inf", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseDelay(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDelayHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	srv := httptest.NewServer(CreateRouter(logger))
	defer srv.Close()

	t.Run("Waits at least the requested delay", func(t *testing.T) {
		start := time.Now()
		resp, err := http.Get(srv.URL + "/delay/0.2?x=1")
		require.NoError(t, err)
		defer resp.Body.Close()
		elapsed := time.Since(start)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

		var body DelayResponseDTO
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "1", body.Args["x"])
		assert.Contains(t, body.URL, "/delay/0.2")
	})

	t.Run("Rejects an invalid delay", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/delay/abc")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Rejects a non-finite delay", func(t *testing.T) {
		for _, raw := range []string{"NaN", "Inf"} {
			resp, err := http.Get(srv.URL + "/delay/" + raw)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, raw)
		}
	})

	t.Run("Stops waiting when the client goes away", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/delay/5", nil)
		require.NoError(t, err)
		start := time.Now()
		_, err = http.DefaultClient.Do(req)
		assert.Error(t, err)
		assert.Less(t, time.Since(start), time.Second)
	})
}
