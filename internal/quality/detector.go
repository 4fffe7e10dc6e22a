package quality

import (
	"github.com/pemistahl/lingua-go"
)

// Language identifies a detected text language
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageWelsh   Language = "cy"
	LanguageOther   Language = "other"
)

// LanguageDetector identifies the language of a text. The boolean reports
// whether detection was conclusive; an inconclusive result is never a
// mismatch, callers must skip the check instead.
type LanguageDetector interface {
	Detect(text string) (Language, bool)
}

// linguaDetector backs LanguageDetector with a statistical n-gram model.
// It is built over the full language set so that foreign-language text can
// produce a conclusive mismatch rather than being forced into en/cy.
type linguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLinguaDetector builds the production language detector. Model data is
// loaded lazily on first use, so construction is cheap.
func NewLinguaDetector() LanguageDetector {
	return &linguaDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build(),
	}
}

func (d *linguaDetector) Detect(text string) (Language, bool) {
	detected, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return LanguageOther, false
	}

	switch detected {
	case lingua.English:
		return LanguageEnglish, true
	case lingua.Welsh:
		return LanguageWelsh, true
	default:
		return LanguageOther, true
	}
}
