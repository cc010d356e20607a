package notify

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"
)

const verificationTmpl = `<h4>Verify Your Email Address</h4>
<p>Thank you for registering! Please verify your email address to complete the registration process.</p>
{{if .Link}}<p>Please click the below link to verify your email address:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
{{else}}<p>Please use the below token to verify your email address with the <code>/account/verify-email</code> api route:</p>
<p><code>{{.Token}}</code></p>
{{end}}<p>If you did not create this account, please ignore this email.</p>`

const alreadyRegisteredTmpl = `<h4>Email Already Registered</h4>
<p>Your email <strong>{{.Email}}</strong> is already registered.</p>
{{if .Link}}<p>If you don't know your password please visit the <a href="{{.Link}}">forgot password</a> page.</p>
{{else}}<p>If you don't know your password you can reset it via the <code>/account/forgot-password</code> api route.</p>
{{end}}`

const passwordResetTmpl = `<h4>Reset Password Email</h4>
{{if .Link}}<p>Please click the below link to reset your password, the link will be valid for 1 day:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
{{else}}<p>Please use the below token to reset your password with the <code>/account/reset-password</code> api route:</p>
<p><code>{{.Token}}</code></p>
{{end}}`

// Template names, also used as the "template" tag on delivery reports.
const (
	TemplateVerification      = "verification"
	TemplateAlreadyRegistered = "already_registered"
	TemplatePasswordReset     = "password_reset"
)

// Templates renders the account emails. Each has a link variant, used when
// the request carried an origin, and an API-only variant quoting the token.
type Templates struct {
	t *template.Template
}

func NewTemplates() *Templates {
	t := template.New("mail")
	template.Must(t.New(TemplateVerification).Parse(verificationTmpl))
	template.Must(t.New(TemplateAlreadyRegistered).Parse(alreadyRegisteredTmpl))
	template.Must(t.New(TemplatePasswordReset).Parse(passwordResetTmpl))
	return &Templates{t: t}
}

type mailData struct {
	Email string
	Token string
	Link  string
}

func link(origin, path, token string) string {
	if origin == "" {
		return ""
	}
	l := strings.TrimRight(origin, "/") + path
	if token != "" {
		l += "?token=" + url.QueryEscape(token)
	}
	return l
}

func (t *Templates) render(name, to, subject string, data mailData) (Message, error) {
	var buf bytes.Buffer
	if err := t.t.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}

func (t *Templates) Verification(to, token, origin string) (Message, error) {
	return t.render(TemplateVerification, to, "Welcome! Verify Your Email", mailData{
		Email: to, Token: token, Link: link(origin, "/account/verify-email", token),
	})
}

func (t *Templates) AlreadyRegistered(to, origin string) (Message, error) {
	return t.render(TemplateAlreadyRegistered, to, "Email Already Registered", mailData{
		Email: to, Link: link(origin, "/account/forgot-password", ""),
	})
}

func (t *Templates) PasswordReset(to, token, origin string) (Message, error) {
	return t.render(TemplatePasswordReset, to, "Reset Password", mailData{
		Email: to, Token: token, Link: link(origin, "/account/reset-password", token),
	})
}
