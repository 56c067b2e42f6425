package pipeline

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	apperrors "contract-analyzer/errors"
)

const (
	// Pages averaging fewer characters than this are treated as image
	// dominated and the document is flagged for OCR.
	ocrCharThreshold = 100

	// A line repeated this often in the first/last lines of pages is
	// treated as a running header or footer.
	headerFooterRepeats = 3

	defaultFilename = "uploaded_contract.pdf"
)

// Parser extracts per-page text from PDF bytes and assembles a Document with
// contiguous character offsets. It never rasterizes: scanned documents are
// flagged via needs_ocr and parsed as-is.
type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse reads the PDF and returns a Document, or an error wrapping ErrParser
// when the bytes are not a readable PDF.
func (p *Parser) Parse(data []byte, filename string) (doc *Document, err error) {
	// The underlying PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = apperrors.WrapErrorf(apperrors.ErrParser, "pdf reader panic: %v", r)
		}
	}()

	if filename == "" {
		filename = defaultFilename
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrParser, "open pdf: %v", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, apperrors.WrapError(apperrors.ErrParser, "document has no pages")
	}

	rawPages := make([]string, 0, totalPages)
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			p.logger.Warn("Skipping null page", zap.Int("page", pageNum))
			rawPages = append(rawPages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("Failed to extract text from page",
				zap.Int("page", pageNum),
				zap.Error(err))
			text = ""
		}
		rawPages = append(rawPages, text)
	}

	headersFooters := detectRepeatedLines(rawPages)
	cleaned := make([]string, len(rawPages))
	for i, raw := range rawPages {
		cleaned[i] = cleanPageText(raw, headersFooters)
	}

	pages, totalChars := assemblePages(cleaned)

	avgChars := 0
	if len(pages) > 0 {
		avgChars = totalChars / len(pages)
	}
	needsOCR := avgChars < ocrCharThreshold

	if needsOCR {
		p.logger.Warn("Document has minimal text, may need OCR",
			zap.String("filename", filename),
			zap.Int("avg_chars_per_page", avgChars))
	}

	doc = &Document{
		DocID:     uuid.New().String(),
		Filename:  filename,
		PageCount: len(pages),
		Pages:     pages,
		Metadata: map[string]interface{}{
			"parser_used":             "ledongthuc/pdf",
			"needs_ocr":               needsOCR,
			"avg_chars_per_page":      avgChars,
			"total_pages":             len(pages),
			"headers_footers_removed": len(headersFooters) > 0,
		},
		CreatedAt: time.Now().UTC(),
	}

	p.logger.Info("Parsed PDF",
		zap.String("doc_id", doc.DocID),
		zap.String("filename", filename),
		zap.Int("pages", len(pages)),
		zap.Bool("needs_ocr", needsOCR))

	return doc, nil
}

// assemblePages builds Page records with cumulative character offsets. The
// offset ranges are half-open and tile the concatenated document exactly:
// page i's end equals page i+1's start. Returns the pages and the total count
// of trimmed characters used for the OCR heuristic.
func assemblePages(cleanedTexts []string) ([]Page, int) {
	pages := make([]Page, 0, len(cleanedTexts))
	offset := 0
	totalChars := 0

	for i, text := range cleanedTexts {
		start := offset
		end := offset + len(text)
		offset = end
		totalChars += len(strings.TrimSpace(text))

		pages = append(pages, Page{
			PageNumber:      i + 1,
			RawText:         text,
			NormalizedText:  Normalize(text),
			CharOffsetStart: start,
			CharOffsetEnd:   end,
			WordCount:       WordCount(text),
		})
	}
	return pages, totalChars
}

// detectRepeatedLines finds short lines repeated in the first or last three
// lines of pages, which are almost always running headers or footers.
func detectRepeatedLines(rawPages []string) map[string]bool {
	if len(rawPages) < 3 {
		return nil
	}

	firstCounts := make(map[string]int)
	lastCounts := make(map[string]int)
	for _, raw := range rawPages {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) < 3 {
			continue
		}
		for _, l := range lines[:3] {
			firstCounts[l]++
		}
		for _, l := range lines[len(lines)-3:] {
			lastCounts[l]++
		}
	}

	repeated := make(map[string]bool)
	for line, count := range firstCounts {
		if count >= headerFooterRepeats && len(line) < 100 {
			repeated[line] = true
		}
	}
	for line, count := range lastCounts {
		if count >= headerFooterRepeats && len(line) < 100 {
			repeated[line] = true
		}
	}
	if len(repeated) == 0 {
		return nil
	}
	return repeated
}

var (
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe = regexp.MustCompile(`[ \t]+`)
)

// cleanPageText strips detected headers/footers and tidies whitespace without
// touching the wording retrieval and grounding operate on.
func cleanPageText(text string, headersFooters map[string]bool) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	if len(headersFooters) > 0 {
		kept := lines[:0]
		for _, line := range lines {
			if s := strings.TrimSpace(line); s != "" && headersFooters[s] {
				continue
			}
			kept = append(kept, line)
		}
		lines = kept
	}

	cleaned := strings.Join(lines, "\n")
	cleaned = blankRunRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = spaceRunRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
