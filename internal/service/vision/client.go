// Package vision detects facial emotion through the Google Cloud Vision API.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/metrics"
)

var ErrNotConfigured = errors.New("google vision api key not configured")

// Labels reported by face detection.
const (
	Joy      = "joy"
	Sorrow   = "sorrow"
	Anger    = "anger"
	Surprise = "surprise"
	Neutral  = "neutral"
)

// minDominantScore is the POSSIBLE likelihood; weaker signals read as neutral.
const minDominantScore = 0.5

var likelihoodScores = map[string]float64{
	"VERY_UNLIKELY": 0.1,
	"UNLIKELY":      0.3,
	"POSSIBLE":      0.5,
	"LIKELY":        0.7,
	"VERY_LIKELY":   0.9,
}

// LikelihoodScore converts a Vision likelihood enum to a score; unknown values score 0.
func LikelihoodScore(likelihood string) float64 {
	return likelihoodScores[likelihood]
}

// Result is the dominant emotion of the first detected face.
type Result struct {
	Label               string
	Confidence          float64
	All                 map[string]float64
	FaceDetected        bool
	DetectionConfidence float64
}

type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Client calls images:annotate behind a circuit breaker.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	cb         *gobreaker.CircuitBreaker[Result]
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	metrics.SetVisionCircuitState(0)
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        "google-vision",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("[vision] circuit state changed")
			metrics.SetVisionCircuitState(stateValue(to))
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		cb:         cb,
	}
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// DetectEmotion runs FACE_DETECTION on image. Calls fail fast with
// gobreaker.ErrOpenState while the breaker is open.
func (c *Client) DetectEmotion(ctx context.Context, image []byte) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrNotConfigured
	}
	return c.cb.Execute(func() (Result, error) {
		return c.annotate(ctx, image)
	})
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type annotateResponse struct {
	Responses []struct {
		FaceAnnotations []faceAnnotation `json:"faceAnnotations"`
		Error           *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

type faceAnnotation struct {
	DetectionConfidence float64 `json:"detectionConfidence"`
	JoyLikelihood       string  `json:"joyLikelihood"`
	SorrowLikelihood    string  `json:"sorrowLikelihood"`
	AngerLikelihood     string  `json:"angerLikelihood"`
	SurpriseLikelihood  string  `json:"surpriseLikelihood"`
}

func (c *Client) annotate(ctx context.Context, image []byte) (Result, error) {
	body, err := json.Marshal(annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []feature{{Type: "FACE_DETECTION", MaxResults: 5}},
	}}})
	if err != nil {
		return Result{}, fmt.Errorf("encode vision request: %w", err)
	}

	endpoint := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call vision api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("vision api returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode vision response: %w", err)
	}
	if len(decoded.Responses) == 0 {
		return Result{Label: Neutral}, nil
	}
	if apiErr := decoded.Responses[0].Error; apiErr != nil {
		return Result{}, fmt.Errorf("vision api error %d: %s", apiErr.Code, apiErr.Message)
	}
	faces := decoded.Responses[0].FaceAnnotations
	if len(faces) == 0 {
		return Result{Label: Neutral}, nil
	}
	return dominant(faces[0]), nil
}

// dominant picks the strongest of the four likelihoods; earlier labels win ties.
func dominant(face faceAnnotation) Result {
	scores := []struct {
		label string
		score float64
	}{
		{Joy, LikelihoodScore(face.JoyLikelihood)},
		{Sorrow, LikelihoodScore(face.SorrowLikelihood)},
		{Anger, LikelihoodScore(face.AngerLikelihood)},
		{Surprise, LikelihoodScore(face.SurpriseLikelihood)},
	}

	res := Result{
		All:                 make(map[string]float64, len(scores)),
		FaceDetected:        true,
		DetectionConfidence: face.DetectionConfidence,
	}
	best := scores[0]
	for _, s := range scores {
		res.All[s.label] = s.score
		if s.score > best.score {
			best = s
		}
	}

	res.Label, res.Confidence = best.label, best.score
	if best.score < minDominantScore {
		res.Label = Neutral
	}
	return res
}
