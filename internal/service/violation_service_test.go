package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/model"
)

func TestViolationService_RecordRequest(t *testing.T) {
	f := newFixture(nil)
	sink := &fakeSink{}
	svc := NewViolationService(sink, f.pub, nil, zerolog.Nop())

	err := svc.RecordRequest(context.Background(), Student{ID: 7, Label: "S-7"}, &model.LogViolationRequest{
		ExamID:         f.exam.ID.String(),
		ViolationType:  string(model.ViolationTabHidden),
		ViolationCount: 2,
		Metadata:       map[string]string{"ua": "test"},
	})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, f.exam.ID, e.ExamID)
	assert.Equal(t, 7, e.StudentID)
	assert.Equal(t, 2, e.RunningCount)
	assert.False(t, e.Timestamp.IsZero())

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, model.MonitorViolation, f.pub.events[0].Type)
	assert.Equal(t, "tab_hidden", f.pub.events[0].Data["violation_type"])
	assert.Equal(t, "test", f.pub.events[0].Data["ua"])
}

func TestViolationService_Errors(t *testing.T) {
	f := newFixture(nil)
	svc := NewViolationService(&fakeSink{err: errBoom}, f.pub, nil, zerolog.Nop())

	err := svc.RecordRequest(context.Background(), Student{ID: 7}, &model.LogViolationRequest{ExamID: "nope", ViolationType: "tab_hidden"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.RecordRequest(context.Background(), Student{ID: 7}, &model.LogViolationRequest{ExamID: f.exam.ID.String(), ViolationType: "tab_hidden"})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.pub.events)
}
