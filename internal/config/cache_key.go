package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPaperKey returns the cache key for an exam's student-facing paper
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamMeetingKey returns the cache key holding an exam's active video meeting
func (r *CacheKeyStruct) ExamMeetingKey(examID string) string {
	return fmt.Sprintf("exam:%s:meeting", examID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", studentID, examID)
}

// StudentProctorStartKey returns the cache key for when a student's proctored session began
func (r *CacheKeyStruct) StudentProctorStartKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:proctor_start", studentID, examID)
}

// StudentProctorStateKey returns the hash holding a student's violation counters and any undelivered auto-submit
func (r *CacheKeyStruct) StudentProctorStateKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:proctor_state", studentID, examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// ExamLiveStudentsKey returns the set of students holding an open proctored session
func (r *CacheKeyStruct) ExamLiveStudentsKey(examID string) string {
	return fmt.Sprintf("exam:%s:live", examID)
}

// RevokedTokenKey returns the key marking a logged-out token ID
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

var CacheKey = NewCacheKeyStruct()
