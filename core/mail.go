package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/masomo-materials/fs"
)

const (
	emailTemplatesDir = "templates/email"
	extText           = ".txt"
	extHTML           = ".gohtml"
)

var (
	templates       map[string]map[string]executor // {name: {ext: template}}
	tmplInit        sync.Once
	tmplErr         error
	frontendBaseURL string
	strictTemplates bool
)

// executor is satisfied by both text and html templates.
type executor interface {
	Execute(w io.Writer, data interface{}) error
}

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is what email templates are executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) execute(ext string) (string, error) {
	tmpl, ok := templates[m.TemplateName][ext]
	if !ok {
		return "", nil
	}
	var buf bytes.Buffer
	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "rendering %s%s", m.TemplateName, ext)
	}
	return buf.String(), nil
}

// Render fills TextContent and HTMLContent; BodyStr takes precedence over a text template.
func (m *EmailMessage) Render() (err error) {
	if m.TemplateName == "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if err = loadTemplates(); err != nil {
		return err
	}

	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	} else if m.TextContent, err = m.execute(extText); err != nil {
		return err
	}
	m.HTMLContent, err = m.execute(extHTML)
	return err
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates parses the embedded email templates once, at startup.
func ParseEmailTemplates(conf *Config, logger Logger) {
	frontendBaseURL = conf.FrontendBaseURL
	strictTemplates = conf.Debug || conf.TestMode
	if err := loadTemplates(); err != nil {
		logger.Error(fmt.Sprintf("parsing email templates: %v", err), err)
	}
}

func loadTemplates() error {
	tmplInit.Do(func() { templates, tmplErr = parseTemplates() })
	return tmplErr
}

// parseTemplates pairs every `name.ext` of the templates dir with its `_base.ext` layout.
func parseTemplates() (map[string]map[string]executor, error) {
	entries, err := fs.ReadDir(appfs.FS, emailTemplatesDir)
	if err != nil {
		return nil, errors.Wrap(err, "listing email templates")
	}

	parsed := make(map[string]map[string]executor)
	for _, de := range entries {
		fname := de.Name()
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || (ext != extText && ext != extHTML) {
			continue
		}
		files := []string{path.Join(emailTemplatesDir, "_base"+ext), path.Join(emailTemplatesDir, fname)}

		var tmpl executor
		if ext == extText {
			t, err := texttmpl.ParseFS(appfs.FS, files...)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strictTemplates {
				t = t.Option("missingkey=error")
			}
			tmpl = t
		} else {
			t, err := htmltmpl.ParseFS(appfs.FS, files...)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strictTemplates {
				t = t.Option("missingkey=error")
			}
			tmpl = t
		}

		name := strings.TrimSuffix(fname, ext)
		if parsed[name] == nil {
			parsed[name] = make(map[string]executor)
		}
		parsed[name][ext] = tmpl
	}
	return parsed, nil
}
