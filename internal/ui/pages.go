package ui

import (
	"strings"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

type LandingData struct {
	SignupURL string
}

var landingFeatures = []struct{ title, body string }{
	{"Point of Sale", "Fast checkout with barcode scanning and multiple payment methods."},
	{"Analytics & Reports", "Sales, inventory and customer insight on live dashboards."},
	{"Customer Management", "Track purchases and run loyalty programs."},
	{"Inventory Control", "Real-time stock tracking with low stock alerts."},
	{"Secure & Reliable", "Role based permissions for every team member."},
	{"Multi-Location", "Run every store from one dashboard with per-location reporting."},
}

func LandingPage(d LandingData) Node {
	return widePage("Point of sale for growing businesses",
		header(productName, "Everything you need to run your stores, on your own subdomain."),
		Div(Class("grid"),
			Map(landingFeatures, func(f struct{ title, body string }) Node {
				return Div(Class("loc"), H3(Text(f.title)), P(Class("muted"), Text(f.body)))
			}),
		),
		card(
			H2(Text("Ready to start?")),
			P(Class("muted"), Text("Create your organization and get a dedicated login address for your team.")),
			linkButton(d.SignupURL, "Create Your POS", ""),
		),
	)
}

// SignupForm holds the re-displayable signup values. Passwords are never echoed.
type SignupForm struct {
	BusinessName string
	Email        string
	Phone        string
	Subdomain    string
}

type SignupData struct {
	Form       SignupForm
	Errors     map[string]string
	Error      string
	CSRF       string
	MainDomain string
}

func SignupPage(d SignupData) Node {
	fieldErr := func(name string) string { return d.Errors[name] }
	suffix := "." + strings.TrimPrefix(d.MainDomain, ".")
	return page("Create your POS",
		header("Create Your POS", "Start your journey with a powerful point-of-sale system"),
		card(
			alert("error", d.Error),
			Form(Method("post"), Action("/signup"),
				csrfField(d.CSRF),
				field("Business name", "businessName", "text", d.Form.BusinessName, "Acme Coffee", fieldErr("businessName"), Required()),
				field("Email", "email", "email", d.Form.Email, "owner@example.com", fieldErr("email"), Required(), Attr("autocomplete", "email")),
				field("Phone", "phone", "tel", d.Form.Phone, "+62 812 0000 0000", fieldErr("phone"), Required()),
				field("Subdomain", "subdomain", "text", d.Form.Subdomain, "acme", fieldErr("subdomain"),
					Required(), Attr("minlength", "3"), Attr("maxlength", "20"), Attr("pattern", "[a-z0-9]([a-z0-9-]*[a-z0-9])?")),
				If(d.MainDomain != "", P(Class("muted"), Text("Your login address will be <subdomain>"+suffix))),
				field("Password", "password", "password", "", "At least 8 characters", fieldErr("password"), Required(), Attr("autocomplete", "new-password")),
				field("Confirm password", "confirmPassword", "password", "", "", fieldErr("confirmPassword"), Required(), Attr("autocomplete", "new-password")),
				Button(Type("submit"), Class("btn"), Text("Create Organization")),
			),
		),
	)
}

type LoginData struct {
	OrgName   string
	Subdomain string
	Email     string
	Message   string
	Error     string
	Next      string
	CSRF      string
	MainURL   string
	// Action defaults to /login.
	Action    string
}

func LoginPage(d LoginData) Node {
	brand := d.OrgName
	if brand == "" {
		brand = d.Subdomain
	}
	action := d.Action
	if action == "" {
		action = "/login"
	}
	return page("Sign in to "+brand,
		header("Welcome Back", "Sign in to "+brand),
		card(
			alert("success", d.Message),
			alert("error", d.Error),
			Form(Method("post"), Action(action),
				csrfField(d.CSRF),
				hiddenNext(d.Next),
				field("Email", "email", "email", d.Email, "you@example.com", "", Required(), Attr("autocomplete", "email")),
				field("Password", "password", "password", "", "", "", Required(), Attr("autocomplete", "current-password")),
				Button(Type("submit"), Class("btn"), Text("Sign In")),
			),
		),
		If(d.MainURL != "", P(Class("muted"), StyleAttr("text-align:center"),
			Text("Not your organization? "), A(Href(d.MainURL), Text("Go to main site")),
		)),
	)
}

type NotFoundData struct {
	Subdomain string
	Message   string
	MainURL   string
	SignupURL string
}

func OrgNotFoundPage(d NotFoundData) Node {
	message := d.Message
	if message == "" {
		message = `The organization "` + d.Subdomain + `" does not exist or may have been removed.`
	}
	return page("Organization Not Found",
		header("Organization Not Found", "The organization you're looking for doesn't exist"),
		card(
			H2(Text(`"`+d.Subdomain+`" Not Found`)),
			P(Class("muted"), Text(message)),
			Div(Class("alert error"),
				Strong(Text("What you can do:")),
				Ul(
					Li(Text("Check if you typed the subdomain correctly")),
					Li(Text("Contact the organization administrator")),
					Li(Text("Create a new organization if you don't have one")),
				),
			),
			linkButton(d.MainURL, "Go to Main Site", ""),
			linkButton(d.SignupURL, "Create New Organization", "outline"),
		),
	)
}

type UnavailableData struct {
	Subdomain string
	RetryURL  string
	MainURL   string
	RequestID string
}

func OrgUnavailablePage(d UnavailableData) Node {
	return page("Temporarily Unavailable",
		header("We couldn't reach "+d.Subdomain, "This is usually temporary. Your organization has not been removed."),
		card(
			P(Class("muted"), Text("The service that looks up organizations did not answer in time. Try again in a moment.")),
			If(d.RequestID != "", P(Class("muted"), Small(Text("Reference: "+d.RequestID)))),
			linkButton(d.RetryURL, "Try Again", ""),
			linkButton(d.MainURL, "Go to Main Site", "outline"),
		),
	)
}

type LocationOption struct {
	ID      string
	Name    string
	Address string
	Phone   string
	Email   string
}

type SelectLocationData struct {
	OrgName   string
	UserName  string
	Locations []LocationOption
	Error     string
	Next      string
	CSRF      string
	Action    string
}

func SelectLocationPage(d SelectLocationData) Node {
	if len(d.Locations) == 0 {
		return page("No Locations Found",
			header("No Locations Found", "No locations are configured for "+d.OrgName+" yet."),
			card(locationForm(d, "", "Continue Without Location", "")),
		)
	}
	return widePage("Select Your Location",
		header("Select Your Location", "Hi "+d.UserName+", choose where you are working today."),
		alert("error", d.Error),
		Div(Class("grid"),
			Map(d.Locations, func(loc LocationOption) Node {
				return Div(Class("loc"),
					H3(Text(loc.Name)),
					If(loc.Address != "", P(Class("muted"), Text(loc.Address))),
					If(loc.Phone != "", P(Class("muted"), Text("Phone: "+loc.Phone))),
					If(loc.Email != "", P(Class("muted"), Text("Email: "+loc.Email))),
					locationForm(d, loc.ID, "Select", ""),
				)
			}),
		),
		card(locationForm(d, "", "Continue Without Location", "outline")),
	)
}

func locationForm(d SelectLocationData, locationID, label, variant string) Node {
	action := d.Action
	if action == "" {
		action = "/select-location"
	}
	return Form(Method("post"), Action(action),
		csrfField(d.CSRF),
		hiddenNext(d.Next),
		Input(Type("hidden"), Name("locationId"), Value(locationID)),
		Button(Type("submit"), Class("btn "+variant), Text(label)),
	)
}

type ErrorData struct {
	Title     string
	Message   string
	RetryURL  string
	MainURL   string
	RequestID string
}

func ErrorPage(d ErrorData) Node {
	title := d.Title
	if title == "" {
		title = "Something went wrong"
	}
	message := d.Message
	if message == "" {
		message = "An unexpected error occurred. Refresh the page or head back to the main site."
	}
	retry := d.RetryURL
	if retry == "" {
		retry = "/"
	}
	return page(title,
		header(title, ""),
		card(
			P(Class("muted"), Text(message)),
			If(d.RequestID != "", P(Class("muted"), Small(Text("Reference: "+d.RequestID)))),
			linkButton(retry, "Refresh", ""),
			If(d.MainURL != "", linkButton(d.MainURL, "Go to Main Site", "outline")),
		),
	)
}

type DebugRow struct {
	Key   string
	Value string
}

func TenancyDebugPage(rows []DebugRow) Node {
	return page("Tenancy debug",
		header("Tenancy debug", "Hostname classification for this request"),
		card(
			Table(Class("kv"),
				TBody(Map(rows, func(r DebugRow) Node {
					return Tr(Td(Strong(Text(r.Key))), Td(Text(r.Value)))
				})),
			),
		),
	)
}
