package api

import "html/template"

var pageHeader = template.Must(template.New("header").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
`))

var pageFooter = template.Must(template.New("footer").Parse(`</body>
</html>
`))

// loginForm is the native login form. The login gate may hide it behind
// its own message.
var loginForm = template.Must(template.New("login").Parse(`<form id="login" method="post" action="/admin/">
<p class="error">{{.Error}}</p>
<p><label for="username">Username</label><input type="text" id="username" name="username"></p>
<p><label for="password">Password</label><input type="password" id="password" name="password"></p>
<p><input type="submit" value="Login"></p>
</form>
`))

var adminPage = template.Must(template.New("admin").Parse(`<p>Hello <strong>{{.Username}}</strong></p>
<form method="post" action="/admin/logout"><input type="submit" value="Logout"></form>
`))

type pageData struct {
	Title    string
	Username string
	Error    string
}
