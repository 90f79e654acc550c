package classify

import (
	"fmt"
	"strings"

	"github.com/apexai/apex/internal/engine"
	"github.com/apexai/apex/internal/storage"
)

const analysisPreamble = `Analyze this customer feedback. Identify the language used.
Extract sentiment, keywords, and provide an English summary and insight regardless of the input language.
Input can be in Hindi, Tamil, Telugu, Spanish, French, or any other regional language.`

const mediaSuffix = ` Analyze the visual/audio content for sentiment and language cues.`

const batchPromptTemplate = `Generate 5 realistic customer reviews for a "%s". Include a mix of English and regional languages like Hindi, Tamil, or Spanish to demonstrate multi-lingual support. At least one should represent a social media comment or reel feedback.`

const summaryPromptTemplate = "Provide a 3-paragraph executive summary focusing on sentiment trends across different regions, languages, and platforms (including social media/Instagram Reels) based on this data:\n%s"

// maxDigestRecords caps how many records feed the executive summary.
const maxDigestRecords = 20

// buildAnalysisParts lays out the prompt for one piece of feedback. The
// instruction always comes first; remote origins embed the link in the
// instruction instead of sending it as content.
func buildAnalysisParts(in Input, excerpt string) []engine.Part {
	var sb strings.Builder
	sb.WriteString(analysisPreamble)

	var parts []engine.Part
	switch {
	case in.Origin.IsRemote():
		contextType := "URL"
		if in.Origin == storage.OriginReel {
			contextType = "Instagram Reel"
		}
		fmt.Fprintf(&sb, " Visit this %s and analyze reviews, comments, and the content itself: %s.", contextType, in.Text)
		sb.WriteString(" For Reels, focus on audience sentiment in the comments and the tone of the creator.")
	case in.Text != "":
		parts = append(parts, engine.TextPart(in.Text))
	}

	if in.File != nil {
		parts = append(parts, engine.DataPart(in.File.Data, in.File.MIMEType))
		sb.WriteString(mediaSuffix)
	}

	if excerpt != "" {
		parts = append(parts, engine.TextPart("Page excerpt (may be incomplete):\n"+excerpt))
	}

	return append([]engine.Part{engine.TextPart(sb.String())}, parts...)
}

func buildBatchPrompt(business string) string {
	return fmt.Sprintf(batchPromptTemplate, business)
}

// buildDigest renders up to maxDigestRecords records, one per line.
func buildDigest(recs []storage.FeedbackRecord) string {
	if len(recs) > maxDigestRecords {
		recs = recs[:maxDigestRecords]
	}
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = fmt.Sprintf("[%s | %s | %s] %s", r.Language, r.Origin, r.Sentiment, r.OriginalText)
	}
	return strings.Join(lines, "\n")
}

func analysisProperties() map[string]*engine.Schema {
	return map[string]*engine.Schema{
		"sentiment": {Type: engine.TypeString, Description: "One of: Positive, Negative, Neutral"},
		"score": {
			Type:        engine.TypeNumber,
			Description: "A confidence score from 0.0 to 1.0 (1.0 is very positive, 0.0 is very negative)",
		},
		"keywords": {
			Type:        engine.TypeArray,
			Items:       &engine.Schema{Type: engine.TypeString},
			Description: "Key themes or product features mentioned",
		},
		"summary":           {Type: engine.TypeString, Description: "A 10-word summary of the core message in English"},
		"actionableInsight": {Type: engine.TypeString, Description: "A concrete recommendation for the business in English"},
		"language": {
			Type:        engine.TypeString,
			Description: "The detected language of the input (e.g., Hindi, Tamil, Spanish, English, etc.)",
		},
	}
}

var analysisRequired = []string{"sentiment", "score", "keywords", "summary", "actionableInsight", "language"}

func analysisSchema() *engine.Schema {
	return &engine.Schema{
		Type:       engine.TypeObject,
		Properties: analysisProperties(),
		Required:   analysisRequired,
	}
}

func batchSchema() *engine.Schema {
	props := analysisProperties()
	props["text"] = &engine.Schema{Type: engine.TypeString, Description: "The review text as the customer wrote it"}
	return &engine.Schema{
		Type: engine.TypeArray,
		Items: &engine.Schema{
			Type:       engine.TypeObject,
			Properties: props,
			Required:   append([]string{"text"}, analysisRequired...),
		},
	}
}
