// Package report renders a run's ledger contents as a human-readable
// summary, in Markdown for the terminal and as standalone HTML for sharing.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/immdipu/follower-detector/internal/ledger"
)

// Markdown builds the run summary from recorded results and escalations.
func Markdown(results []ledger.DetectionResult,
	failed []ledger.FailedUnfollow) string {

	var followBacks, noFollowBacks, failures int
	for _, res := range results {
		switch {
		case !res.FollowSuccess:
			failures++
		case res.FollowsYouBack:
			followBacks++
		default:
			noFollowBacks++
		}
	}

	var b strings.Builder
	b.WriteString("# Follow-Back Detection Report\n\n")
	fmt.Fprintf(&b, "Generated %s.\n\n",
		time.Now().UTC().Format(time.RFC1123))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "| Probed | Follow back | No follow back | Failed | Escalations |\n")
	fmt.Fprintf(&b, "| --- | --- | --- | --- | --- |\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		len(results), followBacks, noFollowBacks, failures, len(failed))

	if len(results) > 0 {
		b.WriteString("## Results\n\n")
		b.WriteString("| User | Follow | Follows back | Reverted | When |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, res := range results {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				res.UserID,
				mark(res.FollowSuccess),
				mark(res.FollowsYouBack),
				mark(res.UnfollowSuccess),
				res.Timestamp.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("## Unreverted Follows\n\n")
		b.WriteString("These users are still followed and need manual cleanup.\n\n")
		b.WriteString("| User | Reason | When |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, rec := range failed {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				rec.UserID,
				strings.ReplaceAll(rec.Reason, "|", "\\|"),
				rec.Timestamp.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

// HTML converts the Markdown summary into a standalone HTML document.
func HTML(markdown string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	doc.WriteString("<meta charset=\"utf-8\">\n")
	doc.WriteString("<title>Follow-Back Detection Report</title>\n")
	doc.WriteString("</head>\n<body>\n")
	doc.Write(body.Bytes())
	doc.WriteString("</body>\n</html>\n")

	return doc.Bytes(), nil
}
