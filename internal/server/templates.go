package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/login.html
var loginTemplateHTML string

//go:embed templates/profile.html
var profileTemplateHTML string

var loginTemplate = template.Must(template.New("login").Parse(loginTemplateHTML))
var profileTemplate = template.Must(template.New("profile").Parse(profileTemplateHTML))

// LoginPageData represents the data for the login view
type LoginPageData struct {
	ProviderName string
	AuthURL      string
	Notice       string
}

// ProfilePageData represents the data for the authenticated view
type ProfilePageData struct {
	Username  string
	Email     string
	AvatarURL string
}
