// ABOUTME: Lesson record models for completion, favorite, and download collections
// ABOUTME: JSON tags match the persisted user-namespace array layout

package models

import "time"

// LessonRef identifies a lesson the way the UI hands it to the stores.
// CategoryID/CategoryName describe the lesson's parent category, AudioURL
// is the remote playback URL when the lesson carries audio.
type LessonRef struct {
	ID           string `json:"lessonId"`
	Title        string `json:"lessonTitle"`
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName"`
	AudioURL     string `json:"audioUrl,omitempty"`
}

// CompletedLesson records a lesson the user marked as completed.
// CompletedAt is set once at creation and never updated.
type CompletedLesson struct {
	LessonID     string    `json:"lessonId"`
	Title        string    `json:"lessonTitle"`
	CategoryID   string    `json:"categoryId"`
	CategoryName string    `json:"categoryName"`
	CompletedAt  time.Time `json:"completedAt"`
}

// FavoriteLesson records a lesson the user favorited.
type FavoriteLesson struct {
	LessonID     string    `json:"lessonId"`
	Title        string    `json:"lessonTitle"`
	CategoryID   string    `json:"categoryId"`
	CategoryName string    `json:"categoryName"`
	FavoritedAt  time.Time `json:"favoritedAt"`
}

// DownloadedLesson records a lesson the user downloaded for offline playback.
// Size is the downloaded byte count when known, 0 otherwise.
type DownloadedLesson struct {
	LessonID     string    `json:"lessonId"`
	Title        string    `json:"lessonTitle"`
	CategoryID   string    `json:"categoryId"`
	CategoryName string    `json:"categoryName"`
	AudioURL     string    `json:"audioUrl,omitempty"`
	Size         int64     `json:"size,omitempty"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// DownloadedFile is the device-storage record for a downloaded media file.
// LocalPath is empty when the blob storage capability is unavailable and the
// record is a streaming-only placeholder. That is a recognized mode, not an
// error state.
type DownloadedFile struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	LocalPath    string    `json:"localPath,omitempty"`
	Size         int64     `json:"size,omitempty"`
	CategoryID   string    `json:"category"`
	CategoryName string    `json:"categoryName"`
	DownloadedAt time.Time `json:"downloadedAt"`
}

// Streaming reports whether the file has no local copy and must be played
// from its remote URL.
func (f *DownloadedFile) Streaming() bool {
	return f.LocalPath == ""
}

// NewCompletedLesson creates a completion record with the current timestamp.
func NewCompletedLesson(ref LessonRef) CompletedLesson {
	return CompletedLesson{
		LessonID:     ref.ID,
		Title:        ref.Title,
		CategoryID:   ref.CategoryID,
		CategoryName: ref.CategoryName,
		CompletedAt:  time.Now(),
	}
}

// NewFavoriteLesson creates a favorite record with the current timestamp.
func NewFavoriteLesson(ref LessonRef) FavoriteLesson {
	return FavoriteLesson{
		LessonID:     ref.ID,
		Title:        ref.Title,
		CategoryID:   ref.CategoryID,
		CategoryName: ref.CategoryName,
		FavoritedAt:  time.Now(),
	}
}

// NewDownloadedLesson creates a download record with the current timestamp.
func NewDownloadedLesson(ref LessonRef, size int64) DownloadedLesson {
	return DownloadedLesson{
		LessonID:     ref.ID,
		Title:        ref.Title,
		CategoryID:   ref.CategoryID,
		CategoryName: ref.CategoryName,
		AudioURL:     ref.AudioURL,
		Size:         size,
		DownloadedAt: time.Now(),
	}
}
