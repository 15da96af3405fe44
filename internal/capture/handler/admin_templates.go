package handler

import "html/template"

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Site administration</title></head>
<body>
<h1>Site administration</h1>
<p>Welcome, {{.User.Username}}.</p>
<form method="post" action="/admin/logout/"><button type="submit">Log out</button></form>
<table>
<tr><th>ID</th><th>Username</th><th>Email</th><th>Staff</th><th>Superuser</th><th>Date joined</th></tr>
{{range .Users}}<tr><td>{{.ID}}</td><td>{{.Username}}</td><td>{{.Email}}</td><td>{{.IsStaff}}</td><td>{{.IsSuperuser}}</td><td>{{.DateJoined.Format "2006-01-02 15:04"}}</td></tr>
{{end}}</table>
</body>
</html>
`))

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Log in | Site administration</title></head>
<body>
<h1>Site administration</h1>
{{if .Error}}<p class="errornote">{{.Error}}</p>{{end}}
<form method="post" action="/admin/login/">
<input type="hidden" name="next" value="{{.Next}}">
<label>Username: <input type="text" name="username" value="{{.Username}}"></label>
<label>Password: <input type="password" name="password"></label>
<button type="submit">Log in</button>
</form>
</body>
</html>
`))

var loggedOutTemplate = template.Must(template.New("logged_out").Parse(`<!DOCTYPE html>
<html>
<head><title>Logged out | Site administration</title></head>
<body>
<p>Thanks for spending some quality time with the web site today.</p>
<p><a href="/admin/">Log in again</a></p>
</body>
</html>
`))
