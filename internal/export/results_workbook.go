package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/stemsi/exstem-portal/internal/model"
)

const (
	resultsSheet = "Hasil"
	summarySheet = "Ringkasan"
)

var resultHeaders = []string{
	"No", "Nama", "Label", "Skor Objektif", "Persentase Objektif",
	"Skor Akhir", "Persentase Akhir", "Menunggu Penilaian", "Lulus",
	"Pelanggaran", "Kumpul Otomatis", "Alasan", "Durasi (detik)", "Waktu Kumpul",
}

// WriteResultsWorkbook writes an exam's results as an XLSX workbook with a
// row per submission and a summary sheet.
func WriteResultsWorkbook(w io.Writer, res *model.ExamResults) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(resultsSheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(resultHeaders), 1)
	if err := f.SetCellStyle(resultsSheet, "A1", last, bold); err != nil {
		return err
	}

	for r, row := range res.Submissions {
		values := []any{
			r + 1,
			row.StudentName,
			row.ExternalStudentLabel,
			row.ObjectiveScore,
			row.ObjectivePercentage,
			row.FinalScore,
			row.FinalPercentage,
			row.PendingGradingCount,
			yesNo(row.Passed),
			row.ViolationCount,
			yesNo(row.IsAutoSubmit),
			string(row.AutoSubmitReason),
			row.TimeTakenSeconds,
			row.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(resultsSheet, cell, v); err != nil {
				return err
			}
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(resultHeaders))
	if err := f.SetColWidth(resultsSheet, "A", lastCol, 16); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	summary := [][2]any{
		{"Ujian", res.ExamTitle},
		{"Batas Lulus (%)", res.PassThreshold},
		{"Jumlah Peserta", res.Stats.Count},
		{"Jumlah Lulus", res.Stats.PassCount},
		{"Tingkat Kelulusan (%)", res.Stats.PassRate},
		{"Rata-rata (%)", res.Stats.Average},
		{"Terendah (%)", res.Stats.Min},
		{"Tertinggi (%)", res.Stats.Max},
		{"Menunggu Penilaian", res.Stats.PendingGrading},
	}
	for i, kv := range summary {
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1]); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 24); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Ya"
	}
	return "Tidak"
}
