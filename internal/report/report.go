// Package report persists mark-for-report references and renders the
// executive PDF. A reference stores the detector name and its serialized
// configuration, never the finding rows; re-running the detector against
// current data reproduces the table.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/mrh-2003/aml-system/internal/detect"
	"github.com/mrh-2003/aml-system/internal/domain"
)

// ErrUnknownDetector indicates a mark names a detector that does not exist.
var ErrUnknownDetector = errors.New("unknown detector")

// Service manages report references and PDF generation for cases.
type Service struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewService returns a report service. The bus may be nil.
func NewService(repo domain.Repository, bus domain.EventBus) *Service {
	return &Service{repo: repo, bus: bus}
}

// Mark records that a detector run should appear in the case's executive
// report. config captures the filter and detector parameters that produced
// the run; it is serialized as JSON. Marks accumulate: re-marking appends.
func (s *Service) Mark(ctx context.Context, caseID int64, detectorName string, config any, include bool) (*domain.ReportRef, error) {
	if !detect.Known(detectorName) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDetector, detectorName)
	}

	serialized, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize detector config: %w", err)
	}

	ref := &domain.ReportRef{
		CaseID:       caseID,
		DetectorName: detectorName,
		Config:       string(serialized),
		Include:      include,
	}
	if _, err := s.repo.SaveReportRef(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to save report reference: %w", err)
	}

	s.publish(ctx, domain.TopicReportMarked, detectorName, caseID)
	return ref, nil
}

// Refs lists a case's report references in generation order.
func (s *Service) Refs(ctx context.Context, caseID int64, includeOnly bool) ([]*domain.ReportRef, error) {
	return s.repo.ListReportRefs(ctx, caseID, includeOnly)
}

// GeneratePDF renders the executive report for a case: header, summary
// statistics, the list of included detector runs and closing remarks.
func (s *Service) GeneratePDF(ctx context.Context, caseID int64) ([]byte, error) {
	c, err := s.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case %d: %w", caseID, err)
	}
	summary, err := s.repo.CaseSummary(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize case %d: %w", caseID, err)
	}
	refs, err := s.repo.ListReportRefs(ctx, caseID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list report references: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 14, tr("INFORME DE ANÁLISIS FINANCIERO"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 9, tr(fmt.Sprintf("Caso: %s", c.Name)), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("Fecha de generación: %s", time.Now().Format("02/01/2006 15:04"))), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if c.Description != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.SetTextColor(31, 71, 136)
		pdf.CellFormat(0, 8, tr("Descripción del Caso"), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, 5, tr(c.Description), "", "J", false)
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 8, "RESUMEN EJECUTIVO", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf(
		"El presente informe analiza %d transacciones correspondientes a %d personas investigadas, "+
			"con un monto total acumulado de %.2f. El análisis se enfoca en la detección de patrones "+
			"sospechosos relacionados con lavado de activos y actividades financieras ilícitas.",
		summary.Transactions, summary.DistinctClients, summary.TotalAmount,
	)), "", "J", false)

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 8, "HALLAZGOS PRINCIPALES", "", 1, "L", false, 0, "")

	for i, ref := range refs {
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(31, 71, 136)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%d. %s", i+1, ref.DetectorName)), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("Análisis realizado el: %s", ref.GeneratedAt.Format("02/01/2006 15:04"))), "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}
	if len(refs) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 6, tr("No hay análisis marcados para este informe."), "", 1, "L", false, 0, "")
	}

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(31, 71, 136)
	pdf.CellFormat(0, 8, "CONCLUSIONES", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, tr(
		"Basado en el análisis exhaustivo de las transacciones financieras, se han identificado "+
			"patrones de comportamiento que ameritan investigación adicional. Se recomienda profundizar "+
			"en las relaciones detectadas y realizar verificaciones de campo sobre las actividades "+
			"económicas declaradas versus las operaciones realizadas.",
	), "", "J", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	s.publish(ctx, domain.TopicReportGenerated, c.Name, caseID)
	return buf.Bytes(), nil
}

// publish is fire-and-forget; report generation never fails on bus errors.
func (s *Service) publish(ctx context.Context, topic, reference string, caseID int64) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"caseId": caseID, "reference": reference})
	_ = s.bus.Publish(ctx, topic, payload)
}
