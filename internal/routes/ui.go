package routes

import (
	"bytes"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"path/filepath"
	"screenshot-capturer/internal/myhttp"
	"screenshot-capturer/internal/storage"
	"screenshot-capturer/internal/validate"
	"strings"
)

const failedMessage = "Failed to capture screenshot. Please check the URL and try again."

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Webpage Screenshot Capture</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
form { display: flex; gap: .5rem; }
input[type=url] { flex: 4; padding: .5rem; }
button { flex: 1; padding: .5rem; }
.error { color: #b00020; white-space: pre-wrap; }
img { max-width: 100%; margin-top: 1rem; border: 1px solid #ddd; }
</style>
</head>
<body>
<h1>Webpage Screenshot Capture</h1>
<form method="post" action="/">
<input type="url" name="url" value="{{.URL}}" placeholder="Enter website URL (e.g., https://www.example.com)" aria-label="Website URL">
<button type="submit">Capture</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Detail}}<p class="error">Error: {{.Detail}}</p>{{end}}
{{if .Image}}<img src="{{.Image}}" alt="Captured Screenshot">{{end}}
</body>
</html>
`))

type pageData struct {
	URL    string
	Error  string
	Detail string
	Image  string
}

func Page() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, http.StatusOK, pageData{})
	}
}

// Submit captures the URL posted by the form and shows the image or the
// reason it failed.
func Submit(s *Screenshots) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := strings.TrimSpace(r.PostFormValue("url"))
		data := pageData{URL: url}

		shot, err := s.Take(r.Context(), url)
		if err != nil {
			status := statusOf(err)
			switch {
			case errors.Is(err, validate.ErrEmptyURL), errors.Is(err, validate.ErrURLScheme):
				data.Error = err.Error()
			default:
				myhttp.Logger(r.Context()).Error("failed to capture screenshot", "error", err, "url", url)
				data.Error = failedMessage
				data.Detail = err.Error()
			}
			render(w, r, status, data)
			return
		}

		data.Image = "/screenshots/" + shot.Name
		render(w, r, http.StatusOK, data)
	}
}

func render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var b bytes.Buffer
	if err := page.Execute(&b, data); err != nil {
		myhttp.Logger(r.Context()).Error("failed to render page", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = b.WriteTo(w)
}

// Screenshot serves a file written by Take from the screenshot directory or
// the fallback directory.
func Screenshot(s *Screenshots) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if name == "" || name != filepath.Base(name) || !strings.HasPrefix(name, "screenshot_") {
			http.NotFound(w, r)
			return
		}

		for _, dir := range []string{s.directory, s.fallback} {
			files, err := storage.NewFileStorage(r.Context(), storage.FileConfig{Directory: dir})
			if err != nil {
				continue
			}
			data, err := files.Get(r.Context(), name)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				myhttp.Logger(r.Context()).Error("failed to read screenshot", "error", err, "name", name)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			contentType := mime.TypeByExtension(filepath.Ext(name))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Cache-Control", "private, max-age=3600")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
		http.NotFound(w, r)
	}
}
