// Package aggregate derives dashboard figures from feedback records. Every
// function is pure and recomputes from the full slice it is given.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/apexai/apex/internal/storage"
)

const (
	topLanguages    = 5
	maxKeywords     = 20
	maxPainPoints   = 3
	trendTimeLayout = "15:04"
)

// Stats are the headline counters.
type Stats struct {
	TotalFeedbacks int     `json:"totalFeedbacks"`
	AverageScore   float64 `json:"averageScore"`
	PositiveCount  int     `json:"positiveCount"`
	NegativeCount  int     `json:"negativeCount"`
	NeutralCount   int     `json:"neutralCount"`
}

type LanguageCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// TrendPoint is one record's score on the 0-100 scale.
type TrendPoint struct {
	Time  string `json:"time"`
	Score int    `json:"score"`
}

type SentimentCount struct {
	Name  storage.Sentiment `json:"name"`
	Value int               `json:"value"`
}

// Dashboard bundles every derived view.
type Dashboard struct {
	Stats      Stats                    `json:"stats"`
	Sentiments []SentimentCount         `json:"sentiments"`
	Languages  []LanguageCount          `json:"languages"`
	Trend      []TrendPoint             `json:"trend"`
	Keywords   []string                 `json:"keywords"`
	PainPoints []storage.FeedbackRecord `json:"painPoints"`
}

// Summarize counts records per sentiment and averages their scores.
// An empty input yields all zeros.
func Summarize(recs []storage.FeedbackRecord) Stats {
	if len(recs) == 0 {
		return Stats{}
	}
	var s Stats
	var total float64
	for _, r := range recs {
		switch r.Sentiment {
		case storage.SentimentPositive:
			s.PositiveCount++
		case storage.SentimentNegative:
			s.NegativeCount++
		case storage.SentimentNeutral:
			s.NeutralCount++
		}
		total += r.Score
	}
	s.TotalFeedbacks = len(recs)
	s.AverageScore = total / float64(len(recs))
	return s
}

// SentimentDistribution returns the count of each label in fixed
// Positive, Neutral, Negative order, including zero counts.
func SentimentDistribution(recs []storage.FeedbackRecord) []SentimentCount {
	s := Summarize(recs)
	return []SentimentCount{
		{Name: storage.SentimentPositive, Value: s.PositiveCount},
		{Name: storage.SentimentNeutral, Value: s.NeutralCount},
		{Name: storage.SentimentNegative, Value: s.NegativeCount},
	}
}

// Languages returns the five most frequent languages. Equal counts keep
// the order in which the languages first appear.
func Languages(recs []storage.FeedbackRecord) []LanguageCount {
	index := make(map[string]int)
	out := []LanguageCount{}
	for _, r := range recs {
		if i, ok := index[r.Language]; ok {
			out[i].Value++
			continue
		}
		index[r.Language] = len(out)
		out = append(out, LanguageCount{Name: r.Language, Value: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > topLanguages {
		out = out[:topLanguages]
	}
	return out
}

// Trend returns one point per record in ascending timestamp order, with the
// time rendered as HH:MM in loc (UTC when nil).
func Trend(recs []storage.FeedbackRecord, loc *time.Location) []TrendPoint {
	if loc == nil {
		loc = time.UTC
	}
	sorted := make([]storage.FeedbackRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := make([]TrendPoint, len(sorted))
	for i, r := range sorted {
		out[i] = TrendPoint{
			Time:  r.Timestamp.In(loc).Format(trendTimeLayout),
			Score: int(math.Round(r.Score * 100)),
		}
	}
	return out
}

// KeywordCloud returns distinct keywords in record order, capped at 20.
func KeywordCloud(recs []storage.FeedbackRecord) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range recs {
		for _, k := range r.Keywords {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
			if len(out) == maxKeywords {
				return out
			}
		}
	}
	return out
}

// PainPoints returns the first three negative records.
func PainPoints(recs []storage.FeedbackRecord) []storage.FeedbackRecord {
	out := []storage.FeedbackRecord{}
	for _, r := range recs {
		if r.Sentiment == storage.SentimentNegative {
			out = append(out, r)
			if len(out) == maxPainPoints {
				break
			}
		}
	}
	return out
}

// Build computes every view over recs, which callers pass newest first.
func Build(recs []storage.FeedbackRecord, loc *time.Location) Dashboard {
	return Dashboard{
		Stats:      Summarize(recs),
		Sentiments: SentimentDistribution(recs),
		Languages:  Languages(recs),
		Trend:      Trend(recs, loc),
		Keywords:   KeywordCloud(recs),
		PainPoints: PainPoints(recs),
	}
}
