package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/cache"
	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
	"github.com/joseph-ayodele/pdf-analyzer/internal/ocr"
)

type fakeReader struct {
	doc ocr.DocumentText
}

func (f *fakeReader) ReadText(context.Context, string) (ocr.DocumentText, error) {
	return f.doc, nil
}

func (f *fakeReader) RenderPage(_ context.Context, _ string, page int) ([]byte, error) {
	return []byte(fmt.Sprintf("png-%d", page)), nil
}

// fakeRecognizer answers "text of page N"; delays let later pages finish first.
type fakeRecognizer struct {
	delays map[int]time.Duration
	fail   map[int]error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img ocr.PageImage) (ocr.Recognition, error) {
	if d := f.delays[img.Page]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ocr.Recognition{}, ctx.Err()
		}
	}
	if err := f.fail[img.Page]; err != nil {
		return ocr.Recognition{}, err
	}
	c := 90.0
	return ocr.Recognition{Text: fmt.Sprintf("text of page %d", img.Page), Confidence: &c}, nil
}

type countingDispatcher struct {
	inner     *async.Dispatcher[ocr.Recognition]
	submitted atomic.Int32
}

func (c *countingDispatcher) Submit(ctx context.Context, task async.Task[ocr.Recognition]) <-chan async.Outcome[ocr.Recognition] {
	c.submitted.Add(1)
	return c.inner.Submit(ctx, task)
}

type fakeChecker struct {
	mu    sync.Mutex
	reply string
	err   error
	got   []llm.CheckRequest
}

func (f *fakeChecker) CheckRules(_ context.Context, req llm.CheckRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	return f.reply, f.err
}

type update struct {
	status   string
	progress int
	result   any
}

type recordingSink struct {
	mu        sync.Mutex
	updates   []update
	destroyed []string
}

func (r *recordingSink) Update(_ string, status string, progress int, result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update{status, progress, result})
}

func (r *recordingSink) DestroyAfter(id string, _ time.Duration) *time.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = append(r.destroyed, id)
	return nil
}

func (r *recordingSink) last() update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

type harness struct {
	proc       *Processor
	reader     *fakeReader
	recognizer *fakeRecognizer
	dispatcher *countingDispatcher
	checker    *fakeChecker
	sink       *recordingSink
	cache      *cache.Memory
}

func newHarness(t *testing.T, doc ocr.DocumentText) *harness {
	t.Helper()
	h := &harness{
		reader:     &fakeReader{doc: doc},
		recognizer: &fakeRecognizer{},
		dispatcher: &countingDispatcher{inner: async.NewDispatcher[ocr.Recognition](2, nil)},
		checker:    &fakeChecker{reply: "```json\n{\"status\":\"PASS\",\"evidence\":\"found\",\"confidence\":\"87\"}\n```"},
		sink:       &recordingSink{},
		cache:      cache.NewMemory(0),
	}
	proc, err := NewProcessor(Deps{
		Reader:     h.reader,
		Recognizer: h.recognizer,
		Dispatcher: h.dispatcher,
		Cache:      h.cache,
		Checker:    h.checker,
		Progress:   h.sink,
	}, Config{TextThreshold: 50, Languages: []string{"eng"}}, nil)
	require.NoError(t, err)
	h.proc = proc
	return h
}

func uploadedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1700000000000-doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func scannedDoc(pages int) ocr.DocumentText {
	return ocr.DocumentText{Pages: pages, PageTexts: make([]string, pages)}
}

func assertMonotonic(t *testing.T, updates []update) {
	t.Helper()
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].progress, updates[i-1].progress, "update %d went backwards", i)
	}
}

func TestProcess_TextNativeSkipsRecognition(t *testing.T) {
	body := strings.Repeat("This invoice is payable within thirty days.  ", 5)
	h := newHarness(t, ocr.DocumentText{Pages: 1, PageTexts: []string{body}, Method: "pdf-go"})
	path := uploadedFile(t)

	err := h.proc.Process(context.Background(), async.Job{ID: "job-1", FilePath: path, Rules: []string{"Mentions payment terms"}})
	require.NoError(t, err)

	assert.EqualValues(t, 0, h.dispatcher.submitted.Load())
	require.Len(t, h.checker.got, 1)
	assert.Equal(t, llm.CollapseWhitespace(body), h.checker.got[0].Text)

	last := h.sink.last()
	assert.Equal(t, constants.StatusComplete, last.status)
	assert.Equal(t, constants.ProgressDone, last.progress)
	res, ok := last.result.(llm.Result)
	require.True(t, ok)
	require.Len(t, res.Verdicts, 1)
	assert.Equal(t, constants.VerdictPass, res.Verdicts[0].Status)
	assert.Equal(t, 87, res.Verdicts[0].Confidence)
	assert.Equal(t, "Mentions payment terms", res.Verdicts[0].Rule)

	assertMonotonic(t, h.sink.updates)
	assert.NoFileExists(t, path)
	assert.Equal(t, []string{"job-1"}, h.sink.destroyed)
}

func TestProcess_ScannedMergesInPageOrder(t *testing.T) {
	h := newHarness(t, scannedDoc(3))
	h.recognizer.delays = map[int]time.Duration{1: 60 * time.Millisecond, 2: 30 * time.Millisecond}
	path := uploadedFile(t)

	err := h.proc.Process(context.Background(), async.Job{ID: "job-2", FilePath: path, Rules: []string{"a", "b"}})
	require.NoError(t, err)

	assert.EqualValues(t, 3, h.dispatcher.submitted.Load())
	require.Len(t, h.checker.got, 1)
	text := h.checker.got[0].Text
	i1 := strings.Index(text, "text of page 1")
	i2 := strings.Index(text, "text of page 2")
	i3 := strings.Index(text, "text of page 3")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0, text)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
	assert.Contains(t, text, "Page 1:")
	assert.Contains(t, text, "---PAGE---")

	var perPage int
	for _, u := range h.sink.updates {
		if strings.HasPrefix(u.status, "Recognized page") {
			perPage++
			assert.GreaterOrEqual(t, u.progress, constants.ProgressOCRStarted)
			assert.LessOrEqual(t, u.progress, constants.ProgressCheckingRules)
		}
	}
	assert.Equal(t, 3, perPage)
	assertMonotonic(t, h.sink.updates)
	assert.Equal(t, constants.StatusComplete, h.sink.last().status)
}

func TestProcess_CacheHitBypassesDispatcher(t *testing.T) {
	h := newHarness(t, scannedDoc(2))
	hash := ocr.ContentHash([]byte("png-1"), []string{"eng"})
	require.NoError(t, h.cache.Set(context.Background(), hash, ocr.Recognition{Text: "cached page one"}))

	analysis, err := h.proc.Run(context.Background(), async.Job{ID: "job-3", FilePath: uploadedFile(t), Rules: []string{"r"}})
	require.NoError(t, err)
	require.NotNil(t, analysis.OCRConfidence, "the recognized page reported a confidence")
	assert.InDelta(t, 90.0, *analysis.OCRConfidence, 1e-9)

	assert.EqualValues(t, 1, h.dispatcher.submitted.Load())
	assert.Contains(t, h.checker.got[0].Text, "cached page one")
	assert.Equal(t, 2, h.cache.Len())
}

func TestProcess_PageFailureIsTerminal(t *testing.T) {
	h := newHarness(t, scannedDoc(3))
	h.recognizer.fail = map[int]error{
		2: common.NewUpstreamError("ocr", errors.New("status 503")),
		3: common.NewUpstreamError("ocr", errors.New("status 500")),
	}
	path := uploadedFile(t)

	err := h.proc.Process(context.Background(), async.Job{ID: "job-4", FilePath: path, Rules: []string{"r"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)

	// every page was still submitted
	assert.EqualValues(t, 3, h.dispatcher.submitted.Load())
	assert.Empty(t, h.checker.got)

	last := h.sink.last()
	assert.Equal(t, constants.StatusFailed, last.status)
	assert.Equal(t, constants.ProgressDone, last.progress)
	f, ok := last.result.(Failure)
	require.True(t, ok)
	assert.Equal(t, common.CodeUpstream, f.Code)
	assert.Equal(t, "Recognition failed for page 2", f.Error)

	assertMonotonic(t, h.sink.updates)
	assert.NoFileExists(t, path)
	assert.Equal(t, []string{"job-4"}, h.sink.destroyed)
}

func TestProcess_MalformedVerdict(t *testing.T) {
	h := newHarness(t, ocr.DocumentText{Pages: 1, PageTexts: []string{strings.Repeat("word ", 40)}})
	h.checker.reply = "I could not decide."

	err := h.proc.Process(context.Background(), async.Job{ID: "job-5", FilePath: uploadedFile(t), Rules: []string{"r"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMalformedVerdict)

	f, ok := h.sink.last().result.(Failure)
	require.True(t, ok)
	assert.Equal(t, common.CodeMalformedVerdict, f.Code)
}

func TestProcess_CheckerErrorIsUpstream(t *testing.T) {
	h := newHarness(t, ocr.DocumentText{Pages: 1, PageTexts: []string{strings.Repeat("word ", 40)}})
	h.checker.err = context.DeadlineExceeded

	err := h.proc.Process(context.Background(), async.Job{ID: "job-6", FilePath: uploadedFile(t), Rules: []string{"r"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstreamTimeout)
	assert.Equal(t, common.CodeUpstreamTimeout, h.sink.last().result.(Failure).Code)
}

func TestRun_DoneContextBeforeRecognition(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		code string
		is   error
	}{
		{
			name: "cancelled",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
			code: common.CodeCanceled,
			is:   common.ErrCanceled,
		},
		{
			name: "deadline passed",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
			},
			code: common.CodeUpstreamTimeout,
			is:   common.ErrUpstreamTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, scannedDoc(2))
			ctx, cancel := tt.ctx()
			defer cancel()

			_, err := h.proc.Run(ctx, async.Job{ID: "job-ctx", FilePath: uploadedFile(t), Rules: []string{"r"}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.Equal(t, tt.code, common.Code(err))
			assert.EqualValues(t, 0, h.dispatcher.submitted.Load())
			assert.Empty(t, h.checker.got)
		})
	}
}

func TestMeanConfidence(t *testing.T) {
	c := func(v float64) *float64 { return &v }
	mean, ok := MeanConfidence([]PageUnit{{Confidence: c(80)}, {}, {Confidence: c(90)}})
	require.True(t, ok)
	assert.InDelta(t, 85.0, mean, 1e-9)

	_, ok = MeanConfidence([]PageUnit{{PageNumber: 1}})
	assert.False(t, ok)
}

func TestMergePages(t *testing.T) {
	merged := MergePages([]PageUnit{
		{PageNumber: 3, Text: "three"},
		{PageNumber: 1, Text: " one\n"},
		{PageNumber: 2, Text: "two"},
	})
	assert.Equal(t, "Page 1:\none"+PageDelimiter+"Page 2:\ntwo"+PageDelimiter+"Page 3:\nthree", merged)
}

func TestPageProgress(t *testing.T) {
	assert.Equal(t, 60, pageProgress(1, 3))
	assert.Equal(t, 70, pageProgress(2, 3))
	assert.Equal(t, 80, pageProgress(3, 3))
}
