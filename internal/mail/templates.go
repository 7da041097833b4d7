package mail

import (
	"bytes"
	"html/template"
)

const (
	SubjectVerification = "Verify your email address"
	SubjectReset        = "Reset your password"
)

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`<h1>Welcome to Auth System!</h1>
<p>Hi {{.Name}},</p>
<p>Thank you for registering. Use the code below to verify your email address:</p>
<h2>{{.Code}}</h2>
<p>This code expires in {{.Minutes}} minutes.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<h1>Reset your password</h1>
<p>Hi {{.Name}},</p>
<p>Click the link below to choose a new password:</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p>This link expires in {{.Minutes}} minutes. If you did not request a reset you can ignore this email.</p>`))
)

type VerificationData struct {
	Name    string
	Code    string
	Minutes int
}

type ResetData struct {
	Name    string
	URL     string
	Minutes int
}

func RenderVerification(data VerificationData) (string, error) {
	var buf bytes.Buffer
	if err := verificationTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func RenderReset(data ResetData) (string, error) {
	var buf bytes.Buffer
	if err := resetTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
