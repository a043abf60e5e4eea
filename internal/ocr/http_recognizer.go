package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

// HTTPRecognizer posts page images to a remote recognition service as
// multipart/form-data with an "options" JSON field and a "file" PNG part.
type HTTPRecognizer struct {
	url        string
	languages  []string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPRecognizer(cfg Config, logger *slog.Logger) (*HTTPRecognizer, error) {
	if cfg.APIURL == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "ocr api url is required for the http backend", common.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.withDefaults()
	return &HTTPRecognizer{
		url:        cfg.APIURL,
		languages:  cfg.Languages,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

type recognizeOptions struct {
	Languages []string `json:"languages"`
}

type recognizeResponse struct {
	Text       *string  `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func (h *HTTPRecognizer) Recognize(ctx context.Context, img PageImage) (Recognition, error) {
	reqID := uuid.New().String()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, contentType, err := h.encode(img)
	if err != nil {
		return Recognition{}, fmt.Errorf("encode page %d: %w", img.Page, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, body)
	if err != nil {
		return Recognition{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-Id", reqID)

	h.logger.Debug("ocr.http.request", "req_id", reqID, "page", img.Page, "bytes", len(img.PNG))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("ocr.http.send_error", "req_id", reqID, "page", img.Page, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return Recognition{}, common.NewUpstreamError("ocr", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			h.logger.Warn("ocr.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Recognition{}, common.NewUpstreamError("ocr", fmt.Errorf("read response: %w", err))
	}

	h.logger.Info("ocr.http.response",
		"req_id", reqID,
		"page", img.Page,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return Recognition{}, common.NewUpstreamError("ocr",
			fmt.Errorf("page %d: non-2xx status %d: %s", img.Page, resp.StatusCode, truncate(string(raw), 512)))
	}

	var rr recognizeResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return Recognition{}, common.NewUpstreamError("ocr", fmt.Errorf("page %d: malformed response: %w", img.Page, err))
	}
	if rr.Text == nil {
		return Recognition{}, common.NewUpstreamError("ocr", fmt.Errorf("page %d: response has no text field", img.Page))
	}

	out := Recognition{Text: Normalize(*rr.Text)}
	if rr.Confidence != nil {
		c := *rr.Confidence
		// some services report 0..1
		if c <= 1 {
			c *= 100
		}
		out.Confidence = &c
	}
	return out, nil
}

func (h *HTTPRecognizer) encode(img PageImage) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	opts, err := json.Marshal(recognizeOptions{Languages: h.languages})
	if err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("options", string(opts)); err != nil {
		return nil, "", err
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="page_%d.png"`, img.Page))
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.PNG); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
