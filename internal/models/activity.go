// ABOUTME: Activity log record model with typed activity kinds
// ABOUTME: Append-only log entries created by domain mutations, never updated

package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies an activity log record.
type ActivityType string

const (
	ActivityCompleted  ActivityType = "completed"
	ActivityFavorited  ActivityType = "favorited"
	ActivityDownloaded ActivityType = "downloaded"
	ActivityStarted    ActivityType = "started"
)

// ActivityRecord is a single entry in the append-only user activity log.
// Records are created by domain mutations, never mutated afterwards, and
// removed only by bulk clear or log-cap overflow.
type ActivityRecord struct {
	ID           string       `json:"id"`
	Type         ActivityType `json:"type"`
	LessonID     string       `json:"lessonId"`
	LessonTitle  string       `json:"lessonTitle"`
	CategoryID   string       `json:"categoryId"`
	CategoryName string       `json:"categoryName"`
	AudioURL     string       `json:"audioUrl,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewActivityRecord creates an activity record for a lesson with a generated
// ID and the current timestamp.
func NewActivityRecord(t ActivityType, ref LessonRef) ActivityRecord {
	return ActivityRecord{
		ID:           uuid.New().String(),
		Type:         t,
		LessonID:     ref.ID,
		LessonTitle:  ref.Title,
		CategoryID:   ref.CategoryID,
		CategoryName: ref.CategoryName,
		AudioURL:     ref.AudioURL,
		Timestamp:    time.Now(),
	}
}
