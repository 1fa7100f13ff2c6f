package webui

import (
	"html/template"
	"io"
	"net/http"
)

// loginPageHTML carries its CSS inline so the page works before login.
const loginPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>SRGAN Dashboard - Login</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            background: #0f172a;
            color: #e2e8f0;
        }
        .card {
            width: 100%;
            max-width: 360px;
            padding: 40px 32px;
            background: #1e293b;
            border: 1px solid #334155;
            border-radius: 12px;
        }
        h1 { font-size: 22px; margin-bottom: 4px; }
        .hint { font-size: 13px; color: #94a3b8; margin-bottom: 24px; }
        form { display: flex; flex-direction: column; gap: 16px; }
        input {
            padding: 12px 14px;
            font-size: 15px;
            border: 1px solid #475569;
            border-radius: 8px;
            background: #0f172a;
            color: #fff;
        }
        input:focus { outline: none; border-color: #60a5fa; }
        button {
            padding: 12px;
            font-size: 15px;
            font-weight: 600;
            color: #fff;
            background: #2563eb;
            border: none;
            border-radius: 8px;
            cursor: pointer;
        }
        .error {
            display: {{if .Error}}block{{else}}none{{end}};
            padding: 10px 12px;
            font-size: 13px;
            color: #fca5a5;
            background: rgba(239, 68, 68, 0.12);
            border-radius: 8px;
        }
        .footer { margin-top: 20px; font-size: 12px; color: #64748b; text-align: center; }
    </style>
</head>
<body>
    <div class="card">
        <h1>SRGAN Dashboard</h1>
        <p class="hint">Enter the dashboard password to continue</p>
        <form method="POST" action="/login">
            <div class="error">{{.Error}}</div>
            <input type="password" name="password" placeholder="Password" required autofocus>
            <button type="submit">Sign in</button>
        </form>
        <p class="footer">Password set by WEBUI_PASSWORD</p>
    </div>
</body>
</html>`

// LoginPageData is the login template's input.
type LoginPageData struct {
	Error string
}

var loginTemplate = template.Must(template.New("login").Parse(loginPageHTML))

// RenderLoginPage writes the login page to w.
func RenderLoginPage(w io.Writer, data LoginPageData) error {
	return loginTemplate.Execute(w, data)
}

// HandleLoginPage renders the login page, showing ?error= if present.
func HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")

	data := LoginPageData{Error: r.URL.Query().Get("error")}
	if err := RenderLoginPage(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
