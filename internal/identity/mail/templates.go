package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

const messageTemplates = `
{{define "verification"}}<!DOCTYPE html>
<html>
<body>
<p>Welcome to {{.AppName}}.</p>
<p>Confirm your email address by following this link:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not create an account you can ignore this message.</p>
</body>
</html>{{end}}
{{define "reset"}}<!DOCTYPE html>
<html>
<body>
<p>A password reset was requested for your {{.AppName}} account.</p>
<p>Choose a new passphrase within the next hour:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not request this, no action is needed.</p>
</body>
</html>{{end}}
`

var subjects = map[Kind]string{
	KindVerification: "Confirm your email address",
	KindReset:        "Reset your passphrase",
}

type templateData struct {
	AppName string
	Link    string
}

var templates = template.Must(template.New("mail").Parse(messageTemplates))

func render(kind Kind, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(kind), data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", kind, err)
	}
	return buf.String(), nil
}
