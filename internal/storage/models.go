package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a collection changed between read and write.
var ErrConflict = errors.New("collection version conflict")

// Origin is the channel a piece of feedback arrived through.
type Origin string

const (
	OriginText  Origin = "text"
	OriginImage Origin = "image"
	OriginVideo Origin = "video"
	OriginURL   Origin = "url"
	OriginReel  Origin = "reel"
)

// ParseOrigin validates s as an Origin.
func ParseOrigin(s string) (Origin, error) {
	switch o := Origin(strings.ToLower(strings.TrimSpace(s))); o {
	case OriginText, OriginImage, OriginVideo, OriginURL, OriginReel:
		return o, nil
	}
	return "", fmt.Errorf("unknown origin %q", s)
}

// IsMedia reports whether the origin carries an uploaded file.
func (o Origin) IsMedia() bool {
	return o == OriginImage || o == OriginVideo
}

// IsRemote reports whether the origin references a resource the model must retrieve.
func (o Origin) IsRemote() bool {
	return o == OriginURL || o == OriginReel
}

type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// ParseSentiment matches s case-insensitively against the three labels.
func ParseSentiment(s string) (Sentiment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive, nil
	case "negative":
		return SentimentNegative, nil
	case "neutral":
		return SentimentNeutral, nil
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleCustomer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// FeedbackRecord is one normalized classification outcome. Records are
// immutable once stored; the collection only grows or is cleared.
type FeedbackRecord struct {
	ID                string    `json:"_id"`
	OwnerID           string    `json:"userId,omitempty"`
	OriginalText      string    `json:"originalText"`
	Origin            Origin    `json:"sourceType"`
	SourcePreview     string    `json:"sourcePreview,omitempty"`
	Sentiment         Sentiment `json:"sentiment"`
	Score             float64   `json:"score"`
	Keywords          []string  `json:"keywords"`
	Summary           string    `json:"summary"`
	ActionableInsight string    `json:"actionableInsight"`
	Timestamp         time.Time `json:"timestamp"`
	Language          string    `json:"language"`
}

type UserAccount struct {
	ID          string    `json:"_id"`
	Contact     string    `json:"contact"`
	DisplayName string    `json:"fullName"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FeedbackFilter selects records by equality. Zero fields match everything.
type FeedbackFilter struct {
	OwnerID   string
	Sentiment Sentiment
}

// IsEmpty reports whether the filter has no conditions.
func (f FeedbackFilter) IsEmpty() bool {
	return f.OwnerID == "" && f.Sentiment == ""
}

func (f FeedbackFilter) matches(r FeedbackRecord) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.Sentiment != "" && r.Sentiment != f.Sentiment {
		return false
	}
	return true
}
