package sandbox

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dlclient/internal/remote"
)

var uiTemplates = template.Must(template.New("layout").Funcs(template.FuncMap{
	"size":    func(b int64) string { return fmt.Sprintf("%.2f MB", float64(b)/(1024*1024)) },
	"escape":  url.PathEscape,
	"expires": func(at float64) string { return time.Unix(int64(at), 0).Format(time.RFC3339) },
}).Parse(`{{define "layout"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>Download sandbox</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    a{color:#0b63e5;text-decoration:none}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Consolas,monospace}
    .list{margin:0;padding-left:18px}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
  </style>
</head>
<body>
  <h1>Download sandbox</h1>
  <div class="muted">Simulated service for the download client. API base: <span class="mono">{{.Prefix}}</span></div>
  {{if .Error}}<div class="card"><strong>Error:</strong> {{.Error}}</div>{{end}}
  {{if .Task}}
  <div class="card">
    <h2>Task <span class="mono">{{.TaskID}}</span></h2>
    <div>Status: <span class="status">{{.Task.Status}}</span> {{printf "%.1f" .Task.Progress}}%</div>
    {{if .Task.Filename}}<div>File: {{.Task.Filename}}</div>{{end}}
    {{if .Task.Error}}<div class="muted">{{.Task.Error}}</div>{{end}}
  </div>
  {{end}}
  <div class="card">
    <h2>Open task</h2>
    <form method="get" action="/ui/tasks"><input type="text" name="id" placeholder="Task ID"/> <button type="submit">Open</button></form>
  </div>
  <div class="card">
    <h2>History</h2>
    {{if .History}}
    <ul class="list">
    {{range .History}}
      <li>
        <span class="mono">{{.Name}}</span> · {{size .Size}} · expires {{expires .ExpiresAt}}
        {{if eq .Type "file"}} · <a href="/downloads/{{escape .Name}}">download</a> · <a href="/view/{{escape .Name}}">view</a>{{else}} · <span class="muted">folder</span>{{end}}
      </li>
    {{end}}
    </ul>
    {{else}}<div class="muted">Nothing stored yet</div>{{end}}
    <div class="muted">Cookies uploaded: {{.Cookies}} · Busy: {{.Busy}}</div>
  </div>
</body>
</html>
{{end}}`))

type uiPage struct {
	Prefix  string
	Error   string
	TaskID  string
	Task    *remote.TaskStatus
	History []remote.HistoryEntry
	Cookies bool
	Busy    bool
}

// RegisterUIRoutes registers a minimal HTML index without JS
func (a *API) RegisterUIRoutes(router *gin.Engine, prefix string) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", func(c *gin.Context) { a.renderIndex(c, prefix, "", http.StatusOK) })
	router.GET("/ui/tasks", func(c *gin.Context) {
		id := strings.TrimSpace(c.Query("id"))
		if id == "" {
			c.Redirect(http.StatusFound, "/")
			return
		}
		a.renderIndex(c, prefix, id, http.StatusOK)
	})
}

func (a *API) renderIndex(c *gin.Context, prefix, taskID string, code int) {
	page := uiPage{
		Prefix:  prefix,
		TaskID:  taskID,
		Cookies: a.manager.CookiesExist(),
		Busy:    a.manager.IsBusy(),
	}
	if taskID != "" {
		if st, ok := a.manager.Status(taskID); ok {
			page.Task = &st
		} else {
			page.Error = "task not found"
			code = http.StatusNotFound
		}
	}
	history, err := a.manager.Store().List()
	if err != nil {
		page.Error = err.Error()
	}
	page.History = history
	c.HTML(code, "layout", page)
}
