package model

import "time"

// MonitorEventType is the kind of event pushed to the live monitor.
type MonitorEventType string

const (
	MonitorJoined    MonitorEventType = "joined"
	MonitorLeft      MonitorEventType = "left"
	MonitorAnswered  MonitorEventType = "answered"
	MonitorViolation MonitorEventType = "violation"
	MonitorGaze      MonitorEventType = "gaze"
	MonitorSubmitted MonitorEventType = "submitted"
	MonitorSnapshot  MonitorEventType = "snapshot"
)

// MonitorEvent is published on the exam's monitor channel.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	ExamID    string           `json:"exam_id"`
	StudentID int              `json:"student_id,omitempty"`
	Label     string           `json:"label,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	At        time.Time        `json:"at"`
}

// MonitorState is the first message sent to an admin opening the monitor.
type MonitorState struct {
	Type            MonitorEventType `json:"type"`
	ExamID          string           `json:"exam_id"`
	TotalQuestions  int              `json:"total_questions"`
	LiveStudents    map[int]int64    `json:"live_students"`
	ViolationCounts map[int]int64    `json:"violation_counts"`
	TotalViolations int64            `json:"total_violations"`
	SubmittedCount  int              `json:"submitted_count"`
}
