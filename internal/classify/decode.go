package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/apexai/apex/internal/storage"
)

const (
	defaultScore   = 0.5
	defaultInsight = "Monitor for further similar feedback."
	defaultLang    = "Unknown"
)

var fencedJSON = regexp.MustCompile("```(?:json|JSON)?\\s*\\n?([\\s\\S]*?)\\n?```")

// extractJSON pulls the JSON payload out of a model response that may be
// wrapped in a markdown code fence or surrounded by prose.
func extractJSON(content string) string {
	if m := fencedJSON.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(content, "{[")
	if start == -1 {
		return strings.TrimSpace(content)
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end <= start {
		return strings.TrimSpace(content)
	}
	return content[start : end+1]
}

// looseScore accepts 0.8 and "0.8". Anything else leaves it unset.
type looseScore struct {
	value float64
	ok    bool
}

func (s *looseScore) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if json.Unmarshal(b, &str) != nil {
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			s.value, s.ok = v, true
		}
		return nil
	}
	var v float64
	if json.Unmarshal(b, &v) == nil {
		s.value, s.ok = v, true
	}
	return nil
}

// looseString keeps JSON strings and drops every other type.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if json.Unmarshal(b, &str) == nil {
		*s = looseString(str)
	}
	return nil
}

// looseKeywords accepts an array (string elements only) or a single
// comma-separated string.
type looseKeywords []string

func (k *looseKeywords) UnmarshalJSON(b []byte) error {
	var list []json.RawMessage
	if json.Unmarshal(b, &list) == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			var str string
			if json.Unmarshal(item, &str) == nil && strings.TrimSpace(str) != "" {
				out = append(out, strings.TrimSpace(str))
			}
		}
		*k = out
		return nil
	}
	var str string
	if json.Unmarshal(b, &str) == nil {
		out := []string{}
		for _, part := range strings.Split(str, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*k = out
	}
	return nil
}

// rawAnalysis is the model's answer before defaults are applied. Every
// field tolerates a value of the wrong type; only a payload that is not a
// JSON object fails to decode.
type rawAnalysis struct {
	Text              looseString   `json:"text"`
	Sentiment         looseString   `json:"sentiment"`
	Score             looseScore    `json:"score"`
	Keywords          looseKeywords `json:"keywords"`
	Summary           looseString   `json:"summary"`
	ActionableInsight looseString   `json:"actionableInsight"`
	Language          looseString   `json:"language"`
}

func decodeAnalysis(raw string) (rawAnalysis, error) {
	var a rawAnalysis
	payload := extractJSON(raw)
	if payload == "" {
		// An empty body decodes as an empty object; every field takes its default.
		return a, nil
	}
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return rawAnalysis{}, fmt.Errorf("decoding analysis: %w", err)
	}
	return a, nil
}

// decodeBatch requires a JSON array. Elements that are not objects are skipped.
func decodeBatch(raw string) ([]rawAnalysis, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &elems); err != nil {
		return nil, fmt.Errorf("decoding batch: %w", err)
	}
	items := make([]rawAnalysis, 0, len(elems))
	for _, e := range elems {
		var a rawAnalysis
		if json.Unmarshal(e, &a) != nil {
			continue
		}
		items = append(items, a)
	}
	return items, nil
}

// normalizeSentiment maps free-form model output onto the three labels.
func normalizeSentiment(s string) storage.Sentiment {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "positive"):
		return storage.SentimentPositive
	case strings.Contains(s, "negative"):
		return storage.SentimentNegative
	default:
		return storage.SentimentNeutral
	}
}

func normalizeScore(s looseScore) float64 {
	if !s.ok || s.value == 0 || math.IsNaN(s.value) {
		return defaultScore
	}
	return math.Max(0, math.Min(1, s.value))
}

// apply copies the analysis fields onto rec, substituting defaults.
func (a rawAnalysis) apply(rec *storage.FeedbackRecord) {
	rec.Sentiment = normalizeSentiment(string(a.Sentiment))
	rec.Score = normalizeScore(a.Score)
	rec.Keywords = []string(a.Keywords)
	if rec.Keywords == nil {
		rec.Keywords = []string{}
	}
	rec.Summary = string(a.Summary)
	rec.ActionableInsight = string(a.ActionableInsight)
	if strings.TrimSpace(rec.ActionableInsight) == "" {
		rec.ActionableInsight = defaultInsight
	}
	rec.Language = strings.TrimSpace(string(a.Language))
	if rec.Language == "" {
		rec.Language = defaultLang
	}
}
