package linkcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const reportShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>docmake link report</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
code { background: #f4f4f4; padding: 0 0.2rem; }
</style>
</head>
<body>
%s
</body>
</html>
`

// WriteReport renders the verification result as an HTML report. The summary
// is authored as markdown and rendered with goldmark; broken entries are
// ordered with locale-aware collation so the report is stable across runs.
func WriteReport(result *Result, reportPath string, generatedAt time.Time) error {
	md := buildMarkdown(result, generatedAt)

	var body strings.Builder
	renderer := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := renderer.Convert([]byte(md), &body); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	html := fmt.Sprintf(reportShell, body.String())
	if err := os.WriteFile(reportPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func buildMarkdown(result *Result, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# Link check report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Pages scanned: %d\n", result.Pages)
	fmt.Fprintf(&b, "- Links checked: %d\n", result.LinksChecked)
	fmt.Fprintf(&b, "- Broken links: %d\n", len(result.Broken))
	fmt.Fprintf(&b, "- Duration: %s\n\n", result.Duration.Round(time.Millisecond))

	if len(result.Broken) == 0 {
		b.WriteString("All links resolved.\n")
		return b.String()
	}

	broken := make([]BrokenLink, len(result.Broken))
	copy(broken, result.Broken)
	coll := collate.New(language.English, collate.IgnoreCase)
	sort.Slice(broken, func(i, j int) bool {
		if c := coll.CompareString(broken[i].Page, broken[j].Page); c != 0 {
			return c < 0
		}
		return coll.CompareString(broken[i].URL, broken[j].URL) < 0
	})

	b.WriteString("| Page | Link | Status | Reason |\n")
	b.WriteString("|------|------|--------|--------|\n")
	for _, bl := range broken {
		status := "-"
		if bl.Status != 0 {
			status = fmt.Sprintf("%d", bl.Status)
		}
		kind := ""
		if bl.IsInternal {
			kind = " (internal)"
		}
		fmt.Fprintf(&b, "| `%s` | `%s`%s | %s | %s |\n",
			escapePipes(bl.Page), escapePipes(bl.URL), kind, status, escapePipes(bl.Reason))
	}
	return b.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
