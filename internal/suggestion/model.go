package suggestion

import (
	"strings"
	"time"
)

// Status is the review state of a suggestion.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ParseStatus normalizes user input into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	return status, status.Valid()
}

// BBox is a face bounding box in image pixel coordinates.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Suggestion is a proposed face → person match awaiting human review.
type Suggestion struct {
	ID                  string     `json:"id"`
	FaceInstanceID      string     `json:"faceInstanceId"`
	SuggestedPersonID   string     `json:"suggestedPersonId"`
	Confidence          float64    `json:"confidence"`
	SourceFaceID        string     `json:"sourceFaceId"`
	Status              Status     `json:"status"`
	CreatedAt           time.Time  `json:"createdAt"`
	ReviewedAt          *time.Time `json:"reviewedAt"`
	PersonName          string     `json:"personName"`
	ThumbnailRef        string     `json:"thumbnailRef"`
	ImageRef            string     `json:"imageRef"`
	BBox                *BBox      `json:"bbox"`
	DetectionConfidence *float64   `json:"detectionConfidence"`
	QualityScore        *float64   `json:"qualityScore"`
}

// Pending reports whether the suggestion still awaits review.
func (s Suggestion) Pending() bool {
	return s.Status == StatusPending
}

// Clone returns a deep copy so pointer fields are never shared between snapshots.
func (s Suggestion) Clone() Suggestion {
	out := s
	if s.ReviewedAt != nil {
		t := *s.ReviewedAt
		out.ReviewedAt = &t
	}
	if s.BBox != nil {
		b := *s.BBox
		out.BBox = &b
	}
	if s.DetectionConfidence != nil {
		v := *s.DetectionConfidence
		out.DetectionConfidence = &v
	}
	if s.QualityScore != nil {
		v := *s.QualityScore
		out.QualityScore = &v
	}
	return out
}
