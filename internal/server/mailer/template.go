package mailer

import (
	"fmt"
	"strings"
	"text/template"
)

// LinkVars is the payload for rendering a magic-link email.
type LinkVars struct {
	SiteName string
	Link     string
	TTL      string
}

const linkSubjectTmpl = `Sign in to {{.SiteName}}`

const linkBodyTmpl = `Hi,

Someone asked to sign in to {{.SiteName}} with this email address.
If that was you, open the link below within {{.TTL}}:

{{.Link}}

The link works exactly once. If you did not request it, you can
safely ignore this message.
`

// LinkRenderer renders the magic-link message pair from the package
// templates. Parsing happens once at construction.
type LinkRenderer struct {
	subject *template.Template
	body    *template.Template
}

// NewLinkRenderer parses the built-in templates.
func NewLinkRenderer() (*LinkRenderer, error) {
	subject, err := template.New("subject").Parse(linkSubjectTmpl)
	if err != nil {
		return nil, fmt.Errorf("parsing subject template: %w", err)
	}
	body, err := template.New("body").Parse(linkBodyTmpl)
	if err != nil {
		return nil, fmt.Errorf("parsing body template: %w", err)
	}
	return &LinkRenderer{subject: subject, body: body}, nil
}

// Render executes both templates for the given variables.
func (r *LinkRenderer) Render(vars LinkVars) (subject, body string, err error) {
	var sb, bb strings.Builder
	if err := r.subject.Execute(&sb, vars); err != nil {
		return "", "", fmt.Errorf("rendering subject: %w", err)
	}
	if err := r.body.Execute(&bb, vars); err != nil {
		return "", "", fmt.Errorf("rendering body: %w", err)
	}
	return sb.String(), bb.String(), nil
}
