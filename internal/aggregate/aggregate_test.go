package aggregate

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/apexai/apex/internal/storage"
)

var t0 = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func record(s storage.Sentiment, score float64, lang string, ts time.Time, keywords ...string) storage.FeedbackRecord {
	return storage.FeedbackRecord{
		Sentiment: s,
		Score:     score,
		Language:  lang,
		Timestamp: ts,
		Keywords:  keywords,
	}
}

func TestSummarize(t *testing.T) {
	recs := []storage.FeedbackRecord{
		record(storage.SentimentPositive, 0.9, "English", t0),
		record(storage.SentimentPositive, 0.7, "English", t0),
		record(storage.SentimentNegative, 0.2, "English", t0),
	}
	got := Summarize(recs)

	if math.Abs(got.AverageScore-0.6) > 1e-9 {
		t.Errorf("AverageScore = %v, want 0.6", got.AverageScore)
	}
	got.AverageScore = 0
	want := Stats{TotalFeedbacks: 3, PositiveCount: 2, NegativeCount: 1, NeutralCount: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_CountsAddUp(t *testing.T) {
	var recs []storage.FeedbackRecord
	labels := []storage.Sentiment{storage.SentimentPositive, storage.SentimentNeutral, storage.SentimentNegative}
	for i := 0; i < 17; i++ {
		recs = append(recs, record(labels[i%3], float64(i%10)/10, "English", t0))
	}
	s := Summarize(recs)
	if s.PositiveCount+s.NegativeCount+s.NeutralCount != s.TotalFeedbacks {
		t.Errorf("counts %d+%d+%d != total %d", s.PositiveCount, s.NegativeCount, s.NeutralCount, s.TotalFeedbacks)
	}
	if s.AverageScore < 0 || s.AverageScore > 1 {
		t.Errorf("AverageScore %v outside [0,1]", s.AverageScore)
	}
}

func TestEmptyCollection(t *testing.T) {
	got := Build(nil, nil)
	want := Dashboard{
		Stats: Stats{},
		Sentiments: []SentimentCount{
			{Name: storage.SentimentPositive},
			{Name: storage.SentimentNeutral},
			{Name: storage.SentimentNegative},
		},
		Languages:  []LanguageCount{},
		Trend:      []TrendPoint{},
		Keywords:   []string{},
		PainPoints: []storage.FeedbackRecord{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestLanguages_TiesKeepFirstEncounter(t *testing.T) {
	recs := []storage.FeedbackRecord{
		record(storage.SentimentNeutral, 0.5, "Hindi", t0),
		record(storage.SentimentNeutral, 0.5, "Hindi", t0),
		record(storage.SentimentNeutral, 0.5, "Tamil", t0),
		record(storage.SentimentNeutral, 0.5, "English", t0),
	}
	want := []LanguageCount{{"Hindi", 2}, {"Tamil", 1}, {"English", 1}}
	if diff := cmp.Diff(want, Languages(recs)); diff != "" {
		t.Errorf("Languages mismatch (-want +got):\n%s", diff)
	}
}

func TestLanguages_TopFive(t *testing.T) {
	var recs []storage.FeedbackRecord
	langs := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, l := range langs {
		for j := 0; j <= i; j++ {
			recs = append(recs, record(storage.SentimentNeutral, 0.5, l, t0))
		}
	}
	got := Languages(recs)
	want := []LanguageCount{{"G", 7}, {"F", 6}, {"E", 5}, {"D", 4}, {"C", 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Languages mismatch (-want +got):\n%s", diff)
	}
}

func TestTrend(t *testing.T) {
	recs := []storage.FeedbackRecord{
		record(storage.SentimentPositive, 0.876, "English", t0.Add(2*time.Hour)),
		record(storage.SentimentNegative, 0.004, "English", t0),
		record(storage.SentimentNeutral, 0.5, "English", t0.Add(time.Hour+5*time.Minute)),
	}
	want := []TrendPoint{{"09:30", 0}, {"10:35", 50}, {"11:30", 88}}
	if diff := cmp.Diff(want, Trend(recs, nil)); diff != "" {
		t.Errorf("Trend mismatch (-want +got):\n%s", diff)
	}

	ist := time.FixedZone("IST", 5*3600+1800)
	if got := Trend(recs[1:2], ist)[0].Time; got != "15:00" {
		t.Errorf("Trend in IST = %q, want 15:00", got)
	}
}

func TestTrend_DoesNotReorderInput(t *testing.T) {
	recs := []storage.FeedbackRecord{
		record(storage.SentimentPositive, 0.9, "English", t0.Add(time.Hour)),
		record(storage.SentimentNegative, 0.1, "English", t0),
	}
	Trend(recs, nil)
	if !recs[0].Timestamp.Equal(t0.Add(time.Hour)) {
		t.Error("Trend mutated its input")
	}
}

func TestKeywordCloud(t *testing.T) {
	recs := []storage.FeedbackRecord{
		record(storage.SentimentPositive, 0.9, "English", t0, "price", "delivery"),
		record(storage.SentimentPositive, 0.9, "English", t0, "delivery", "taste"),
	}
	want := []string{"price", "delivery", "taste"}
	if diff := cmp.Diff(want, KeywordCloud(recs)); diff != "" {
		t.Errorf("KeywordCloud mismatch (-want +got):\n%s", diff)
	}

	var many []storage.FeedbackRecord
	for i := 0; i < 30; i++ {
		many = append(many, record(storage.SentimentNeutral, 0.5, "English", t0, fmt.Sprintf("k%d", i)))
	}
	got := KeywordCloud(many)
	if len(got) != 20 || got[0] != "k0" || got[19] != "k19" {
		t.Errorf("KeywordCloud cap: got %v", got)
	}
}

func TestPainPoints(t *testing.T) {
	var recs []storage.FeedbackRecord
	for i := 0; i < 5; i++ {
		r := record(storage.SentimentNegative, 0.1, "Tamil", t0)
		r.OriginalText = fmt.Sprintf("n%d", i)
		recs = append(recs, r, record(storage.SentimentPositive, 0.9, "English", t0))
	}
	got := PainPoints(recs)
	if len(got) != 3 || got[0].OriginalText != "n0" || got[2].OriginalText != "n2" {
		t.Errorf("PainPoints = %+v", got)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	recs := []storage.FeedbackRecord{
		record(storage.SentimentPositive, 0.9, "Hindi", t0, "a"),
		record(storage.SentimentNegative, 0.3, "Tamil", t0.Add(time.Minute), "b"),
	}
	first := Build(recs, nil)
	second := Build(recs, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Build not idempotent (-first +second):\n%s", diff)
	}
}
