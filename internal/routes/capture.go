package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"screenshot-capturer/internal/capture"
	"screenshot-capturer/internal/myhttp"
	"screenshot-capturer/internal/storage"
	"screenshot-capturer/internal/validate"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

type Capturer interface {
	Capture(ctx context.Context, request capture.Request) (*capture.Result, error)
}

// Screenshots is the capture front end shared by the API and the UI.
type Screenshots struct {
	capturer  Capturer
	directory string
	fallback  string
	extension string
	limit     *semaphore.Weighted
	publisher storage.Storage
}

type ScreenshotsConfig struct {
	Capturer  Capturer
	Directory string
	// FallbackRoot must match the capturer's so that screenshots written to
	// the fallback directory can still be served.
	FallbackRoot string
	// Format is the image format the capturer produces, "png" or "jpeg".
	Format        string
	MaxConcurrent int64
	// Publisher receives a copy of every screenshot when set.
	Publisher storage.Storage
}

func NewScreenshots(c ScreenshotsConfig) *Screenshots {
	extension := ".png"
	if c.Format == "jpeg" {
		extension = ".jpg"
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	return &Screenshots{
		capturer:  c.Capturer,
		directory: c.Directory,
		fallback:  storage.FallbackDir(c.FallbackRoot),
		extension: extension,
		limit:     semaphore.NewWeighted(c.MaxConcurrent),
		publisher: c.Publisher,
	}
}

// Shot is a finished capture.
type Shot struct {
	*capture.Result
	// Name is the file name below the screenshot directory, or the base name
	// of Path when the capturer fell back to another directory.
	Name string
	// PublishedURL is set when the screenshot was also uploaded.
	PublishedURL string
}

var errBusy = errors.New("too many captures in progress")

// Take validates url and captures it under a fresh random file name.
func (s *Screenshots) Take(ctx context.Context, url string) (*Shot, error) {
	url = strings.TrimSpace(url)
	if err := validate.URL(url); err != nil {
		return nil, err
	}

	name, err := storage.UniqueName("screenshot", s.extension)
	if err != nil {
		return nil, err
	}

	if err := s.limit.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", errBusy, err)
	}
	defer s.limit.Release(1)

	result, err := s.capturer.Capture(ctx, capture.Request{
		URL:        url,
		OutputPath: filepath.Join(s.directory, name),
		ID:         myhttp.RequestID(ctx),
	})
	if err != nil {
		return nil, err
	}

	shot := &Shot{
		Result: result,
		Name:   filepath.Base(result.Path),
	}
	if s.publisher != nil {
		publishedURL, err := s.publish(ctx, url, shot)
		if err != nil {
			// the local file is still usable
			myhttp.Logger(ctx).Warn("failed to publish screenshot", "error", err, "path", result.Path)
		}
		shot.PublishedURL = publishedURL
	}
	return shot, nil
}

type shotMetadata struct {
	URL        string    `json:"url"`
	Bytes      int       `json:"bytes"`
	DurationMS int64     `json:"durationMs"`
	CapturedAt time.Time `json:"capturedAt"`
}

// publish uploads the image and a JSON sidecar describing it in parallel.
func (s *Screenshots) publish(ctx context.Context, url string, shot *Shot) (string, error) {
	data, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: filepath.Dir(shot.Path)})
	if err != nil {
		return "", err
	}
	image, err := data.Get(ctx, shot.Path)
	if err != nil {
		return "", err
	}
	metadata, err := json.Marshal(shotMetadata{
		URL:        url,
		Bytes:      shot.Bytes,
		DurationMS: shot.Duration.Milliseconds(),
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", xerrors.Errorf("failed to marshal metadata: %w", err)
	}

	var publishedURL string
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		u, err := s.publisher.Put(ctx, shot.Name, image)
		if err != nil {
			return xerrors.Errorf("failed to upload screenshot: %w", err)
		}
		publishedURL = u
		return nil
	})
	eg.Go(func() error {
		key := strings.TrimSuffix(shot.Name, filepath.Ext(shot.Name)) + ".json"
		if _, err := s.publisher.Put(ctx, key, metadata); err != nil {
			return xerrors.Errorf("failed to upload metadata: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return "", err
	}
	return publishedURL, nil
}

type CaptureRequest struct {
	URL string `json:"url"`
}

type CaptureResponse struct {
	Path         string `json:"path"`
	Bytes        int    `json:"bytes"`
	DurationMS   int64  `json:"durationMs"`
	PublishedURL string `json:"publishedUrl,omitempty"`
}

// Capture is the JSON API for a single screenshot.
func Capture(s *Screenshots) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := myhttp.Logger(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			logger.Error(fmt.Sprintf("failed to read request body: %s", err))
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Failed to read request body"})
			return
		}

		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON format"})
			return
		}
		if err := validate.RequiredFields(fields, []string{"url"}); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		var request CaptureRequest
		if err := json.Unmarshal(body, &request); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON format"})
			return
		}

		shot, err := s.Take(r.Context(), request.URL)
		if err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				logger.Error("failed to capture screenshot", "error", err, "url", request.URL)
			}
			response := ErrorResponse{Error: err.Error()}
			if kind := capture.KindOf(err); kind != 0 {
				response.Kind = kind.String()
			}
			writeJSON(w, status, response)
			return
		}

		writeJSON(w, http.StatusOK, CaptureResponse{
			Path:         shot.Path,
			Bytes:        shot.Bytes,
			DurationMS:   shot.Duration.Milliseconds(),
			PublishedURL: shot.PublishedURL,
		})
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, validate.ErrEmptyURL), errors.Is(err, validate.ErrURLScheme):
		return http.StatusBadRequest
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	}
	switch capture.KindOf(err) {
	case capture.LaunchFailed, capture.NavigationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
