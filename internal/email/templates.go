package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type reviewRequestedEmailData struct {
	baseEmailData
	ServiceName   string
	ReportName    string
	ReportVersion int
}

type reportApprovedEmailData struct {
	baseEmailData
	ServiceName   string
	ReportName    string
	ReportVersion int
}

type reportRejectedEmailData struct {
	baseEmailData
	ServiceName   string
	ReportName    string
	ReportVersion int
	Reason        string
}

type escalationEmailData struct {
	baseEmailData
	ServiceName string
	Rejections  int
}

type stageOverdueEmailData struct {
	baseEmailData
	ServiceName string
	StageName   string
}

type testerReassignedEmailData struct {
	baseEmailData
	ServiceName string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
