package delay

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// MaxDelay caps the requested delay the same way httpbin does.
const MaxDelay = 10 * time.Second

// DelayResponseDTO mirrors the httpbin /delay response body.
type DelayResponseDTO struct {
	Args    map[string]string `json:"args"`
	Headers map[string]string `json:"headers"`
	Origin  string            `json:"origin"`
	URL     string            `json:"url"`
}

// ParseDelay converts the {seconds} path value into a duration capped at MaxDelay.
func ParseDelay(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, strconv.ErrSyntax
	}
	if seconds < 0 {
		return 0, strconv.ErrRange
	}
	// Clamp before converting: large values overflow time.Duration.
	if seconds >= MaxDelay.Seconds() {
		return MaxDelay, nil
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// DelayHandler answers after the requested number of seconds.
// @Summary Delayed response
// @Produce json
// @Param seconds path number true "Delay in seconds, at most 10"
// @Success 200 {object} DelayResponseDTO
// @Failure 400 {object} ErrorMessage "Invalid delay"
// @Router /delay/{seconds} [get]
func DelayHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := mux.Vars(r)["seconds"]
		d, err := ParseDelay(raw)
		if err != nil {
			logger.Errorf("Invalid delay %q requested: %v", raw, err)
			HttpError(w, "Invalid delay", http.StatusBadRequest, logger)
			return
		}

		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-r.Context().Done():
			logger.Infof("Client went away before the %s delay elapsed", d)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(toDelayResponse(r))
		if err != nil {
			logger.Errorf("Error encountered during JSON Encoding of Response %v", err)
		}
	}
}

func toDelayResponse(r *http.Request) DelayResponseDTO {
	args := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			args[key] = values[0]
		}
	}
	headers := make(map[string]string)
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}
	origin, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		origin = r.RemoteAddr
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return DelayResponseDTO{
		Args:    args,
		Headers: headers,
		Origin:  origin,
		URL:     scheme + "://" + r.Host + r.URL.RequestURI(),
	}
}

func CreateRouter(logger *logrus.Logger) http.Handler {
	r := mux.NewRouter()
	r.Handle("/delay/{seconds}", DelayHandler(logger)).Methods("GET")
	return r
}
