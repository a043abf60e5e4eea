package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// PageImage is one rendered page.
type PageImage struct {
	Page int
	PNG  []byte
}

// Recognition is the text recovered from one page image. Confidence is on a
// 0..100 scale and nil when the backend does not report one.
type Recognition struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Recognizer turns a page image into text. Implementations must honor ctx.
type Recognizer interface {
	Recognize(ctx context.Context, img PageImage) (Recognition, error)
}

// Factory builds a Recognizer for a backend name.
type Factory func(cfg Config, runner Runner, logger *slog.Logger) (Recognizer, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

// RegisterBackend makes a recognizer backend selectable by name.
func RegisterBackend(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[strings.ToLower(name)] = f
}

// Backends lists registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]string, 0, len(backends))
	for name := range backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewRecognizer builds the named backend.
func NewRecognizer(name string, cfg Config, runner Runner, logger *slog.Logger) (Recognizer, error) {
	backendsMu.RLock()
	f, ok := backends[strings.ToLower(name)]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ocr backend %q (available: %s)", name, strings.Join(Backends(), ", "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	cfg.withDefaults()
	return f(cfg, runner, logger)
}

func init() {
	RegisterBackend("http", func(cfg Config, _ Runner, logger *slog.Logger) (Recognizer, error) {
		return NewHTTPRecognizer(cfg, logger)
	})
	RegisterBackend("tesseract", func(cfg Config, runner Runner, logger *slog.Logger) (Recognizer, error) {
		return NewTesseractRecognizer(cfg, runner, logger), nil
	})
}

// ContentHash fingerprints a page image together with the language hints
// it will be recognized with.
func ContentHash(png []byte, languages []string) string {
	h := sha256.New()
	h.Write(png)
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(languages, "+")))
	return hex.EncodeToString(h.Sum(nil))
}
