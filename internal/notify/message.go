package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
)

const (
	textExcerptLen = 100
	htmlExcerptLen = 200
	createdLayout  = "2006-01-02 15:04:05"
)

// severity maps a score onto the badge and accent color used in alerts.
func severity(score int) (badge, color string) {
	switch {
	case score <= 2:
		return "Critical", "#dc3545"
	case score == 3:
		return "Warning", "#fd7e14"
	default:
		return "Low Quality", "#ffc107"
	}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func alertMessage(log models.Log, ev models.Evaluation) Message {
	comment := "N/A"
	if ev.Comment != nil && *ev.Comment != "" {
		comment = *ev.Comment
	}

	text := fmt.Sprintf(`🚨 **Low Quality Alert**

**Score:** %d/5
**Judge:** %s
**Label:** %s

**Prompt:** %s
**Response:** %s

**Comment:** %s

**Log ID:** %d
**Created:** %s`,
		ev.OverallScore, ev.JudgeModel, ev.Label,
		excerpt(log.Prompt, textExcerptLen), excerpt(log.Response, textExcerptLen),
		comment, log.ID, log.CreatedAt.Format(createdLayout))

	badge, color := severity(ev.OverallScore)
	htmlComment := "No additional comments"
	if comment != "N/A" {
		htmlComment = comment
	}

	var buf bytes.Buffer
	err := alertHTML.Execute(&buf, alertView{
		Score:    ev.OverallScore,
		Badge:    badge,
		Color:    template.CSS(color),
		Judge:    ev.JudgeModel,
		Label:    ev.Label,
		Prompt:   excerpt(log.Prompt, htmlExcerptLen),
		Response: excerpt(log.Response, htmlExcerptLen),
		Comment:  htmlComment,
		LogID:    log.ID,
		Created:  log.CreatedAt.Format(createdLayout),
		Year:     log.CreatedAt.Year(),
	})
	html := buf.String()
	if err != nil {
		html = ""
	}

	return Message{
		Kind:    KindAlert,
		Subject: fmt.Sprintf("🚨 LLM Quality Alert - Score: %d/5", ev.OverallScore),
		Text:    text,
		HTML:    html,
	}
}

func summaryMessage(evaluated int, judgeType models.JudgeType, judgeModel string) Message {
	text := fmt.Sprintf(`✅ **Batch Evaluation Complete**

**Evaluated:** %d logs
**Judge Type:** %s
**Judge Model:** %s`, evaluated, judgeType, judgeModel)

	return Message{
		Kind:    KindSummary,
		Subject: fmt.Sprintf("✅ Batch Evaluation Complete - %d logs evaluated", evaluated),
		Text:    text,
	}
}

// plainHTML wraps a text body for email clients that prefer HTML.
func plainHTML(text string) string {
	escaped := template.HTMLEscapeString(text)
	return "<html><body><pre>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</pre></body></html>"
}

type alertView struct {
	Score    int
	Badge    string
	Color    template.CSS
	Judge    string
	Label    string
	Prompt   string
	Response string
	Comment  string
	LogID    int64
	Created  string
	Year     int
}

var alertHTML = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f5f5f5;">
<table width="100%" cellpadding="0" cellspacing="0" style="padding:40px 20px;">
<tr><td align="center">
<table width="600" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;">
<tr><td style="background-color:{{.Color}};padding:30px;text-align:center;">
<h1 style="margin:0;color:#ffffff;font-size:28px;">🚨 LLM Quality Alert</h1>
<p style="margin:10px 0 0 0;color:#ffffff;font-size:14px;">{{.Badge}} - Immediate Attention Required</p>
</td></tr>
<tr><td style="padding:30px;text-align:center;background-color:#f8f9fa;">
<div style="display:inline-block;background-color:{{.Color}};color:#ffffff;padding:20px 40px;border-radius:50px;font-size:48px;font-weight:bold;">{{.Score}}<span style="font-size:24px;">/5</span></div>
<p style="margin:15px 0 0 0;color:#6c757d;font-size:14px;">Quality Score</p>
</td></tr>
<tr><td style="padding:0 30px 30px 30px;">
<p style="font-size:12px;color:#6c757d;text-transform:uppercase;">Judge Information</p>
<p style="font-size:16px;color:#212529;"><strong>{{.Judge}}</strong></p>
<p style="font-size:14px;color:#6c757d;">Label: <span style="color:#212529;">{{.Label}}</span></p>
<p style="font-size:12px;color:#6c757d;text-transform:uppercase;font-weight:600;">📝 Prompt</p>
<div style="background-color:#f8f9fa;padding:15px;border-left:3px solid #007bff;">{{.Prompt}}</div>
<p style="font-size:12px;color:#6c757d;text-transform:uppercase;font-weight:600;">💬 Response</p>
<div style="background-color:#f8f9fa;padding:15px;border-left:3px solid #28a745;">{{.Response}}</div>
<p style="font-size:12px;color:#6c757d;text-transform:uppercase;font-weight:600;">💡 Analysis</p>
<div style="background-color:#fff3cd;padding:15px;border-left:3px solid #ffc107;color:#856404;">{{.Comment}}</div>
<p style="font-size:13px;color:#495057;"><strong>Log ID:</strong> #{{.LogID}} &middot; <strong>Created:</strong> {{.Created}}</p>
</td></tr>
<tr><td style="padding:20px;text-align:center;font-size:12px;color:#6c757d;">
This is an automated alert from <strong>LLM Quality Observer</strong> &middot; {{.Year}}
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))
