package server

import "html/template"

// The handlers serve three small HTML pages: the post-authorization
// confirmation, the query editor form, and the query-saved confirmation.
// They are confirmation screens, not a UI layer, so the markup stays inline.

type confirmationData struct {
	Email    string
	CronURL  string
	QueryURL string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization complete</title></head>
<body>
<h1>Authorization complete</h1>
<p>Gmail access for <b>{{.Email}}</b> has been saved.</p>
<ul>
<li><a href="{{.CronURL}}">Schedule the periodic check</a></li>
<li><a href="{{.QueryURL}}">Edit the search query</a></li>
</ul>
</body>
</html>
`))

type editorData struct {
	Email       string
	Query       string
	HasQuery    bool
	LastUpdated string
}

var editorTmpl = template.Must(template.New("editor").Parse(`<!DOCTYPE html>
<html>
<head><title>Edit search query</title></head>
<body>
<h1>Edit search query</h1>
{{if .HasQuery}}<p>Current query (last updated {{.LastUpdated}}):</p>
<p><code>{{.Query}}</code></p>
{{else}}<p>No query set yet.</p>
{{end}}<form method="POST" action="/setEditQuery">
<input type="hidden" name="emailAddress" value="{{.Email}}">
<input type="text" name="query" value="{{.Query}}" size="60">
<input type="submit" value="Save">
</form>
</body>
</html>
`))

type querySavedData struct {
	Email string
	Query string
}

var querySavedTmpl = template.Must(template.New("querySaved").Parse(`<!DOCTYPE html>
<html>
<head><title>Query saved</title></head>
<body>
<h1>Query saved</h1>
<p>The search query for <b>{{.Email}}</b> is now:</p>
<p><code>{{.Query}}</code></p>
</body>
</html>
`))
