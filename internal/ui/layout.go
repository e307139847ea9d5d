// Package ui renders the top-level screens served before the app shell loads.
package ui

import (
	"net/http"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

const productName = "Kasira POS"

// Render writes node as an HTML document with the given status.
func Render(w http.ResponseWriter, status int, node Node) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return node.Render(w)
}

func page(title string, body ...Node) Node {
	return shell(title, "wrap", body...)
}

func widePage(title string, body ...Node) Node {
	return shell(title, "wrap wide", body...)
}

func shell(title, class string, body ...Node) Node {
	return Doctype(
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
				Meta(Name("robots"), Content("noindex")),
				TitleEl(Text(title+" | "+productName)),
				Link(Rel("icon"), Href("data:,")),
				StyleEl(Raw(stylesheet)),
			),
			Body(
				Main(Class(class), Group(body)),
				Footer(Class("foot"), Small(Text("© "+productName+". All rights reserved."))),
			),
		),
	)
}

func card(nodes ...Node) Node {
	return Section(Class("card"), Group(nodes))
}

func header(title, subtitle string) Node {
	return Div(Class("head"),
		H1(Text(title)),
		If(subtitle != "", P(Class("muted"), Text(subtitle))),
	)
}

func alert(kind, message string) Node {
	if message == "" {
		return nil
	}
	return Div(Class("alert "+kind), Attr("role", "alert"), Text(message))
}

func csrfField(token string) Node {
	if token == "" {
		return nil
	}
	return Input(Type("hidden"), Name("csrf_token"), Value(token))
}

func hiddenNext(next string) Node {
	if next == "" {
		return nil
	}
	return Input(Type("hidden"), Name("next"), Value(next))
}

func field(label, name, kind, value, placeholder, errMsg string, extra ...Node) Node {
	return Div(Class("field"),
		Label(For(name), Text(label)),
		Input(ID(name), Name(name), Type(kind), Value(value), Placeholder(placeholder), Group(extra)),
		If(errMsg != "", P(Class("field-error"), Text(errMsg))),
	)
}

func linkButton(href, label, variant string) Node {
	return A(Href(href), Class("btn "+variant), Text(label))
}

const stylesheet = `
*{box-sizing:border-box}
body{margin:0;font-family:system-ui,-apple-system,"Segoe UI",sans-serif;background:#f6f7fb;color:#1f2430}
.wrap{max-width:440px;margin:48px auto;padding:0 16px}
.wrap.wide{max-width:960px}
.head{text-align:center;margin-bottom:24px}
.head h1{margin:0 0 8px;font-size:28px}
.muted{color:#6b7280}
.card{background:#fff;border:1px solid #e5e7eb;border-radius:10px;padding:24px;margin-bottom:16px}
.field{margin-bottom:14px}
.field label{display:block;font-weight:600;margin-bottom:4px}
.field input{width:100%;padding:9px 10px;border:1px solid #d1d5db;border-radius:6px;font-size:15px}
.field-error{color:#b91c1c;font-size:13px;margin:4px 0 0}
.btn{display:block;width:100%;text-align:center;padding:10px;border-radius:6px;border:1px solid #2563eb;background:#2563eb;color:#fff;font-weight:600;text-decoration:none;cursor:pointer;margin-top:8px;font-size:15px}
.btn.outline{background:#fff;color:#2563eb}
.alert{padding:10px 12px;border-radius:6px;margin-bottom:14px}
.alert.error{background:#fef2f2;border:1px solid #fecaca;color:#991b1b}
.alert.info{background:#eff6ff;border:1px solid #bfdbfe;color:#1e40af}
.alert.success{background:#f0fdf4;border:1px solid #bbf7d0;color:#166534}
.grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(260px,1fr));gap:16px}
.loc{border:1px solid #e5e7eb;border-radius:8px;padding:16px;background:#fff}
.loc h3{margin:0 0 6px}
table.kv{width:100%;border-collapse:collapse}
table.kv td{border-bottom:1px solid #eee;padding:6px 4px;font-family:ui-monospace,monospace;font-size:13px}
.foot{text-align:center;color:#9ca3af;margin:24px 0}
`
