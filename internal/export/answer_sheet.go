// Package export renders submission artifacts: the descriptive answer sheet
// (PDF) and the exam results workbook (XLSX).
package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"strings"
	"time"

	"github.com/signintech/gopdf"
)

// ErrInvalidImage is returned for a canvas payload that is not a decodable image.
var ErrInvalidImage = errors.New("invalid canvas image payload")

// AnswerSheetItem is one descriptive answer on the sheet.
type AnswerSheetItem struct {
	Number       int
	QuestionText string
	ImagePayload string
	Score        *float64
	MaxScore     float64
	Feedback     string
}

// AnswerSheet is everything printed on a descriptive answer sheet.
type AnswerSheet struct {
	ExamTitle    string
	StudentName  string
	StudentLabel string
	SubmittedAt  time.Time
	Items        []AnswerSheetItem
}

// AnswerSheetRenderer writes an answer sheet document.
type AnswerSheetRenderer interface {
	Render(w io.Writer, sheet *AnswerSheet) error
}

const (
	fontFamily   = "body"
	pageMargin   = 40.0
	lineHeight   = 16.0
	maxImageW    = 515.0
	maxImageH    = 360.0
	bodyFontSize = 11
)

// PDFRenderer renders answer sheets with gopdf. It needs a TTF font on disk.
type PDFRenderer struct {
	FontPath string
}

// NewPDFRenderer creates a PDFRenderer using the given TTF font.
func NewPDFRenderer(fontPath string) *PDFRenderer {
	return &PDFRenderer{FontPath: fontPath}
}

// Render writes the sheet as A4 PDF pages.
func (r *PDFRenderer) Render(w io.Writer, sheet *AnswerSheet) error {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	if err := pdf.AddTTFFont(fontFamily, r.FontPath); err != nil {
		return fmt.Errorf("load font %s: %w", r.FontPath, err)
	}
	pdf.AddPage()

	p := &pager{pdf: pdf, y: pageMargin}
	if err := p.heading(sheet); err != nil {
		return err
	}

	for _, item := range sheet.Items {
		if err := p.item(item); err != nil {
			return fmt.Errorf("question %d: %w", item.Number, err)
		}
	}

	if err := pdf.Write(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// pager tracks the cursor and breaks pages.
type pager struct {
	pdf *gopdf.GoPdf
	y   float64
}

func (p *pager) ensure(h float64) {
	if p.y+h > gopdf.PageSizeA4.H-pageMargin {
		p.pdf.AddPage()
		p.y = pageMargin
	}
}

func (p *pager) text(size float64, s string) error {
	if err := p.pdf.SetFont(fontFamily, "", size); err != nil {
		return err
	}
	lines, err := p.pdf.SplitText(s, gopdf.PageSizeA4.W-2*pageMargin)
	if err != nil {
		// SplitText rejects empty input.
		lines = []string{s}
	}
	for _, line := range lines {
		p.ensure(lineHeight)
		p.pdf.SetXY(pageMargin, p.y)
		if err := p.pdf.Cell(nil, line); err != nil {
			return err
		}
		p.y += lineHeight
	}
	return nil
}

func (p *pager) heading(sheet *AnswerSheet) error {
	if err := p.text(16, sheet.ExamTitle); err != nil {
		return err
	}
	p.y += 4
	student := sheet.StudentName
	if sheet.StudentLabel != "" {
		student += " (" + sheet.StudentLabel + ")"
	}
	if err := p.text(bodyFontSize, "Siswa: "+student); err != nil {
		return err
	}
	if err := p.text(bodyFontSize, "Dikumpulkan: "+sheet.SubmittedAt.Format("02 Jan 2006 15:04 MST")); err != nil {
		return err
	}
	p.y += lineHeight
	return nil
}

func (p *pager) item(item AnswerSheetItem) error {
	if err := p.text(12, fmt.Sprintf("%d. %s", item.Number, item.QuestionText)); err != nil {
		return err
	}

	img, cfg, err := decodePayload(item.ImagePayload)
	if err != nil {
		if err := p.text(bodyFontSize, "[Gambar jawaban tidak dapat dibaca]"); err != nil {
			return err
		}
	} else {
		w, h := fit(float64(cfg.Width), float64(cfg.Height))
		p.ensure(h + 8)
		holder, err := gopdf.ImageHolderByBytes(img)
		if err != nil {
			return fmt.Errorf("image holder: %w", err)
		}
		if err := p.pdf.ImageByHolder(holder, pageMargin, p.y+4, &gopdf.Rect{W: w, H: h}); err != nil {
			return fmt.Errorf("draw image: %w", err)
		}
		p.y += h + 8
	}

	score := "Nilai: belum dinilai"
	if item.Score != nil {
		score = fmt.Sprintf("Nilai: %.2f / %.2f", *item.Score, item.MaxScore)
	}
	if err := p.text(bodyFontSize, score); err != nil {
		return err
	}
	if item.Feedback != "" {
		if err := p.text(bodyFontSize, "Catatan: "+item.Feedback); err != nil {
			return err
		}
	}
	p.y += lineHeight
	return nil
}

// decodePayload accepts a data URL or bare base64 and returns the raw
// image bytes with their dimensions.
func decodePayload(payload string) ([]byte, image.Config, error) {
	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, image.Config{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, image.Config{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return raw, cfg, nil
}

// fit scales an image into the printable box keeping its aspect ratio.
func fit(w, h float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxImageW, maxImageH
	}
	scale := min(maxImageW/w, maxImageH/h, 1)
	return w * scale, h * scale
}
