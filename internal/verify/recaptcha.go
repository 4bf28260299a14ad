package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Verifier checks that a confirmation request was made by a human. A failed
// or timed-out check is reported as not-verified; the engine never retries.
type Verifier interface {
	Verify(ctx context.Context, token, clientIP string) (bool, error)
}

type RecaptchaVerifier struct {
	secret         string
	verifyURL      string
	scoreThreshold float64
	client         *http.Client
	log            zerolog.Logger
}

func NewRecaptchaVerifier(secret, verifyURL string, timeout time.Duration, scoreThreshold float64, log zerolog.Logger) *RecaptchaVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RecaptchaVerifier{
		secret:         secret,
		verifyURL:      verifyURL,
		scoreThreshold: scoreThreshold,
		client:         &http.Client{Timeout: timeout},
		log:            log,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *RecaptchaVerifier) Verify(ctx context.Context, token, clientIP string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		// timeout or network failure counts as verification failure
		v.log.Warn().Err(err).Msg("recaptcha verification request failed")
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.log.Warn().Int("status", resp.StatusCode).Msg("recaptcha verification returned non-200")
		return false, nil
	}

	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		v.log.Warn().Err(err).Msg("failed to decode recaptcha response")
		return false, nil
	}

	if !body.Success {
		v.log.Debug().Strs("error_codes", body.ErrorCodes).Msg("recaptcha rejected token")
		return false, nil
	}
	if v.scoreThreshold > 0 && body.Score > 0 && body.Score < v.scoreThreshold {
		v.log.Debug().Float64("score", body.Score).Msg("recaptcha score below threshold")
		return false, nil
	}
	return true, nil
}
