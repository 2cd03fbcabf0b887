package extractor

import (
	"github.com/feichai0017/pdf-extractor/internal/models"
)

const fullTextPreviewLimit = 500

// BuildConsolidatedReport condenses a finished result into the review
// view: which pages approved, which gates failed, and the figures worth
// surfacing. Pure function over the result.
func BuildConsolidatedReport(result *models.ExtractionResult) models.ConsolidatedReport {
	report := models.ConsolidatedReport{
		DocID:      result.DocID,
		Filename:   result.Filename,
		PagesTotal: result.Extraction.PagesTotal,
		Status:     models.StatusApproved,
	}

	if result.Quality != nil {
		report.Status = result.Quality.Status
		for _, gate := range result.Quality.Pages {
			if gate.Status == models.StatusApproved {
				report.ApprovedCount++
				report.ApprovedPages = append(report.ApprovedPages, gate.PageNumber)
			} else {
				report.NeedsReviewCount++
				report.NeedsReviewPages = append(report.NeedsReviewPages, gate)
			}
		}
	}

	for _, page := range result.Pages {
		for _, figure := range page.Figures {
			if figure.Description != "" {
				report.HighQualityFigures = append(report.HighQualityFigures, figure)
			}
		}
	}

	preview := []rune(result.FullText)
	if len(preview) > fullTextPreviewLimit {
		preview = preview[:fullTextPreviewLimit]
	}
	report.FullTextPreview = string(preview)
	return report
}
