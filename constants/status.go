package constants

// Stage is a pipeline stage of one analysis.
type Stage string

const (
	StageStarted     Stage = "STARTED"
	StageReadingText Stage = "READING_TEXT"
	StageOCRFallback Stage = "OCR_FALLBACK"
	StageCheckRules  Stage = "CHECKING_RULES"
	StageFinalizing  Stage = "FINALIZING"
	StageComplete    Stage = "COMPLETE"
	StageFailed      Stage = "FAILED"
)

// Human-readable status labels published to progress subscribers.
const (
	StatusStarting       = "Starting analysis…"
	StatusReading        = "Reading document…"
	StatusTextExtracted  = "Text extracted"
	StatusRunningOCR     = "Running OCR…"
	StatusRecognizedPage = "Recognized page %d of %d"
	StatusCheckingRules  = "Checking rules…"
	StatusFinalizing     = "Finalizing…"
	StatusComplete       = "Complete!"
	StatusFailed         = "Failed"
)

// Progress checkpoints. Approximate indicators, not a work ratio.
const (
	ProgressStarted       = 0
	ProgressReading       = 10
	ProgressTextExtracted = 30
	ProgressOCRStarted    = 50
	ProgressCheckingRules = 80
	ProgressFinalizing    = 90
	ProgressDone          = 100
)
