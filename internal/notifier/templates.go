package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Title           string
	Message         string
	Category        string
	Priority        string
	PriorityColor   string
	PetID           string
	AnomalyType     string
	Confidence      float64
	Timestamp       string
	Recommendations []string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := map[string]any{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := htmltemplate.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// priorityColor returns the accent color for a priority.
func priorityColor(p models.NotificationPriority) string {
	switch p {
	case models.PriorityHigh:
		return "#d32f2f" // red
	case models.PriorityNormal:
		return "#f57c00" // orange
	case models.PriorityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// NotificationToTemplateData converts a notification to template data.
func NotificationToTemplateData(n *models.Notification) *TemplateData {
	data := &TemplateData{
		Title:         n.Title,
		Message:       n.Message,
		Category:      string(n.Category),
		Priority:      string(n.Priority),
		PriorityColor: priorityColor(n.Priority),
		PetID:         n.PetID,
		Timestamp:     n.CreatedAt.UTC().Format(time.RFC1123),
	}

	if v, ok := n.Metadata["anomaly_type"].(string); ok {
		data.AnomalyType = v
	}
	if v, ok := n.Metadata["confidence"].(float64); ok {
		data.Confidence = v
	}
	data.Recommendations = stringList(n.Metadata["recommendations"])

	return data
}

// stringList reads a string slice from metadata that may have been decoded
// from JSON.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
