package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// Normalized quotes shorter than this carry no grounding signal and are
	// rejected outright.
	minQuoteLength = 10

	// Only a short prefix of a dropped quote ever reaches the logs.
	quoteLogPrefix = 30
)

// Confidence policy bounds. A partially grounded result never drops below the
// floor; a result whose every quote failed verification never rises above the
// ceiling.
const (
	partialRemovalFloor   = 20
	allRemovedCeiling     = 30
	perQuotePenalty       = 10
	maxRemovalPenalty     = 20
	noVerifiableRationale = "No verifiable verbatim quotes found in retrieved evidence"
)

// Grounder deterministically verifies that every quote the model emitted is a
// verbatim excerpt of the evidence it was shown. No fuzzy matching: exact
// substring search over normalized text only.
type Grounder struct {
	logger *zap.Logger
}

func NewGrounder(logger *zap.Logger) *Grounder {
	return &Grounder{logger: logger}
}

// Ground verifies the result's quotes against the evidence supplied to the
// analyzer for the same requirement, drops anything unverifiable, and adjusts
// confidence. The compliance state is never changed.
func (g *Grounder) Ground(result ComplianceResult, evidence []EvidenceChunk) ComplianceResult {
	original := len(result.RelevantQuotes)
	if original == 0 {
		return result
	}

	validated := g.GroundQuotes(result.RelevantQuotes, evidence)
	removed := original - len(validated)

	result.RelevantQuotes = validated
	switch {
	case removed == 0:
		// Fully grounded; confidence stands as the model reported it.
	case len(validated) == 0:
		// Ungrounded claims are low-trust regardless of self-reported
		// confidence.
		if result.Confidence > allRemovedCeiling {
			result.Confidence = allRemovedCeiling
		}
		result.Rationale += " [" + noVerifiableRationale + "]"
		g.logger.Warn("All quotes failed verification",
			zap.String("requirement_id", result.RequirementID),
			zap.Int("removed", removed))
	default:
		penalty := removed * perQuotePenalty
		if penalty > maxRemovalPenalty {
			penalty = maxRemovalPenalty
		}
		if c := result.Confidence - penalty; c > partialRemovalFloor {
			result.Confidence = c
		} else {
			result.Confidence = partialRemovalFloor
		}
		result.Rationale += fmt.Sprintf(" [%d of %d quotes removed during validation]", removed, original)
		g.logger.Info("Some quotes failed verification",
			zap.String("requirement_id", result.RequirementID),
			zap.Int("validated", len(validated)),
			zap.Int("removed", removed))
	}

	return result
}

// GroundQuotes returns the verifiable subset of quotes with their page ranges
// resolved from the matching evidence. The chat path uses this directly since
// it computes its own confidence.
func (g *Grounder) GroundQuotes(quotes []Quote, evidence []EvidenceChunk) []Quote {
	validated := make([]Quote, 0, len(quotes))
	for _, quote := range quotes {
		normalized := Normalize(quote.Text)
		if len(normalized) < minQuoteLength {
			g.logger.Warn("Quote rejected as empty",
				zap.String("prefix", truncate(quote.Text, quoteLogPrefix)))
			continue
		}

		if pageStart, pageEnd, ok := matchQuote(normalized, evidence); ok {
			validated = append(validated, Quote{
				Text:      quote.Text,
				PageStart: pageStart,
				PageEnd:   pageEnd,
				Validated: true,
			})
			continue
		}

		g.logger.Warn("Quote not found in evidence, dropping",
			zap.String("prefix", truncate(quote.Text, quoteLogPrefix)))
	}
	return validated
}

// matchQuote searches single chunks in retrieval order, then concatenations
// of chunk pairs whose page ranges are directly adjacent in the document.
// Spans across three or more pages are not matched.
func matchQuote(normalizedQuote string, evidence []EvidenceChunk) (int, int, bool) {
	for _, chunk := range evidence {
		if strings.Contains(chunk.NormalizedText, normalizedQuote) {
			if chunk.PageStart == chunk.PageEnd {
				return chunk.PageStart, chunk.PageStart, true
			}
			return chunk.PageStart, chunk.PageEnd, true
		}
	}

	for _, a := range evidence {
		for _, b := range evidence {
			if a.PageEnd+1 != b.PageStart {
				continue
			}
			combined := a.NormalizedText + " " + b.NormalizedText
			if strings.Contains(combined, normalizedQuote) {
				return a.PageStart, b.PageEnd, true
			}
		}
	}

	return 0, 0, false
}
