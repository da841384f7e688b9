package notify

import (
	"bytes"
	"database/sql"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/carpenike/reformer/internal/models"
)

//go:embed templates/*.html
var emailFS embed.FS

var (
	emailTemplates map[string]*template.Template
	emailErr       error
	emailOnce      sync.Once
)

// EmailData holds the common fields available to all email templates.
type EmailData struct {
	AppName  string // Application name (from app settings).
	BaseURL  string // Application base URL (optional).
	Title    string // Notification title / heading.
	Message  string // Longer body text (optional).
	Link     string // Action URL (optional).
	LinkText string // CTA button label (optional, defaults to "View Details").
}

// parseEmailTemplates parses all email templates once on first use.
func parseEmailTemplates() error {
	emailOnce.Do(func() {
		emailTemplates = make(map[string]*template.Template)

		base, err := emailFS.ReadFile("templates/base.html")
		if err != nil {
			emailErr = fmt.Errorf("notify: read base email template: %w", err)
			return
		}

		for _, page := range []string{"notification.html"} {
			content, err := emailFS.ReadFile("templates/" + page)
			if err != nil {
				emailErr = fmt.Errorf("notify: read email template %s: %w", page, err)
				return
			}

			// The page defines "content" and calls base.html, so base is
			// parsed into the page's template set.
			t, err := template.New(page).Parse(string(content))
			if err != nil {
				emailErr = fmt.Errorf("notify: parse email template %s: %w", page, err)
				return
			}
			if _, err := t.New("base.html").Parse(string(base)); err != nil {
				emailErr = fmt.Errorf("notify: parse base into %s: %w", page, err)
				return
			}
			emailTemplates[page] = t
		}
	})
	return emailErr
}

// renderEmail renders the named email template with the given data.
func renderEmail(templateName string, data EmailData) (string, error) {
	if err := parseEmailTemplates(); err != nil {
		return "", err
	}

	t, ok := emailTemplates[templateName]
	if !ok {
		return "", fmt.Errorf("notify: unknown email template %q", templateName)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, templateName, data); err != nil {
		return "", fmt.Errorf("notify: render email template %q: %w", templateName, err)
	}
	return buf.String(), nil
}

// RenderNotificationEmail renders the general notification email. Relative
// links are made absolute with app.base_url when it is set. It returns an
// empty string if rendering fails.
func RenderNotificationEmail(db *sql.DB, title, message, link string) string {
	baseURL := strings.TrimSuffix(models.GetSetting(db, "app.base_url"), "/")
	if baseURL != "" && strings.HasPrefix(link, "/") {
		link = baseURL + link
	}
	html, err := renderEmail("notification.html", EmailData{
		AppName: models.GetAppName(db),
		BaseURL: baseURL,
		Title:   title,
		Message: message,
		Link:    link,
	})
	if err != nil {
		return ""
	}
	return html
}
