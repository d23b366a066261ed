package httpserver

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

type templateRenderer struct {
	templates *template.Template
}

func newRenderer() (*templateRenderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &templateRenderer{templates: t}, nil
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// pageData is what every template receives.
type pageData struct {
	Email           string
	Error           string
	Errors          []string
	Success         string
	AlreadyLoggedIn bool
	Code            int
}

var statusMessages = map[string]string{
	"created":    "User created successfully",
	"logged-out": "You have been logged out",
	"deleted":    "Your account has been deleted",
	"forced-out": "The session was closed, you can log in again",
	"expired":    "Your session has expired, please log in again",
}
