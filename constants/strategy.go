package constants

// Registered strategy names. Rules files refer to strategies by these names.
const (
	StrategyPlainText = "plaintext"
	StrategyPDFToText = "pdftotext"
	StrategyPDFCPU    = "pdfcpu"
	StrategyDocconv   = "docconv"
	StrategyHTML      = "html"
	StrategyTesseract = "tesseract"
	StrategyAzure     = "azure"
	StrategyOpenAI    = "openai"
	StrategyGemini    = "gemini"
)

// KnownStrategies lists every strategy name in default priority order.
var KnownStrategies = []string{
	StrategyPlainText,
	StrategyPDFToText,
	StrategyPDFCPU,
	StrategyDocconv,
	StrategyHTML,
	StrategyTesseract,
	StrategyAzure,
	StrategyOpenAI,
	StrategyGemini,
}

// PageBreak separates pages in text produced from rasterized documents.
const PageBreak = "\n\f\n"
