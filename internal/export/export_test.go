package export

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stemsi/exstem-portal/internal/model"
)

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodePayload(t *testing.T) {
	raw, cfg, err := decodePayload(pngDataURL(t, 40, 20))
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 20, cfg.Height)

	_, _, err = decodePayload("data:image/png;base64,not-base64!!")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, _, err = decodePayload(base64.StdEncoding.EncodeToString([]byte("plain text")))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestFit(t *testing.T) {
	w, h := fit(100, 50)
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 50.0, h)

	w, h = fit(2060, 1000)
	assert.InDelta(t, maxImageW, w, 0.001)
	assert.InDelta(t, 1000*maxImageW/2060, h, 0.001)

	w, h = fit(100, 1440)
	assert.InDelta(t, maxImageH, h, 0.001)
	assert.InDelta(t, 100*maxImageH/1440, w, 0.001)
}

func TestPDFRenderer_MissingFont(t *testing.T) {
	r := NewPDFRenderer("/nonexistent/font.ttf")
	err := r.Render(&bytes.Buffer{}, &AnswerSheet{ExamTitle: "x"})
	assert.Error(t, err)
}

func TestWriteResultsWorkbook(t *testing.T) {
	res := &model.ExamResults{
		ExamID:        uuid.New(),
		ExamTitle:     "Matematika",
		PassThreshold: 60,
		Stats:         model.ExamStats{Count: 2, PassCount: 1, PassRate: 50, Average: 55, Min: 40, Max: 70},
		Submissions: []model.SubmissionRow{
			{StudentName: "Ani", FinalPercentage: 70, Passed: true, SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
			{StudentName: "Budi", FinalPercentage: 40, IsAutoSubmit: true, AutoSubmitReason: model.AutoSubmitReasonTimeout},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResultsWorkbook(&buf, res))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue(resultsSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Ani", name)

	passed, err := f.GetCellValue(resultsSheet, "I2")
	require.NoError(t, err)
	assert.Equal(t, "Ya", passed)

	reason, err := f.GetCellValue(resultsSheet, "L3")
	require.NoError(t, err)
	assert.Equal(t, "timeout", reason)

	title, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Matematika", title)
}
