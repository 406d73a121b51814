package report

import (
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

var analyzer = govader.NewSentimentIntensityAnalyzer()

var (
	mdLinkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern    = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// plainText strips markdown and bare links so VADER only sees prose.
func plainText(input string) string {
	input = mdLinkPattern.ReplaceAllString(input, "$1")
	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	text := tagPattern.ReplaceAllString(string(rendered), " ")
	text = urlPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func titleSentiment(text string) float64 {
	return analyzer.PolarityScores(plainText(text)).Compound
}

func sentimentLabel(score float64) string {
	switch {
	case score >= 0.20:
		return "positive"
	case score <= -0.20:
		return "negative"
	default:
		return "neutral"
	}
}
