package login

import "github.com/kuitang/e2eauth/internal/browser"

// Login page selectors. Placeholders and labels cover Simplified Chinese,
// Traditional Chinese and English builds of the app.
var (
	UsernameQuery = browser.Query{
		CSS: []string{
			`input[type="email"]`,
			`input[name="username"]`,
			`input[placeholder*="邮箱"]`,
			`input[placeholder*="郵箱"]`,
			`input[placeholder*="用户名"]`,
			`input[placeholder*="使用者名稱"]`,
			`input[placeholder*="Email" i]`,
			`input[placeholder*="Username" i]`,
		},
	}

	PasswordQuery = browser.Query{
		CSS: []string{
			`input[type="password"]`,
			`input[name="password"]`,
		},
	}

	SubmitQuery = browser.Query{
		CSS:     []string{`[type="submit"]`},
		TextTag: "button",
		Text:    []string{"登录", "登入", "Login", "Log in", "Sign in"},
	}
)
