// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"html/template"
	"net/http"
)

type loginPageData struct {
	ReturnURL string
	Error     string
}

var loginPageTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="POST" action="/auth/login">
<input type="hidden" name="return_url" value="{{.ReturnURL}}">
<label>Email or username <input type="text" name="email"></label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

// LoginPage renders the interactive login form for GET /auth/login. The
// return_url query parameter carries the interactive caller back to the
// authorize flow it was redirected away from by requireSessionRedirect.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLoginPage(w, r, r.URL.Query().Get("return_url"), "")
}

func (h *Handler) renderLoginPage(w http.ResponseWriter, r *http.Request, returnURL, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	loginPageTemplate.Execute(w, loginPageData{ReturnURL: returnURL, Error: errMsg})
}
