package routes

import (
	"path"
	"strings"

	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/internal/session"
)

type Access int

const (
	Public Access = iota
	Legal
	GuestOnly
	Authenticated
	BuyerOnly
	MakerOnly
	Unknown
)

type Kind int

const (
	Render Kind = iota
	Redirect
)

type Decision struct {
	Kind     Kind
	View     string
	Location string
}

const (
	LoginPath      = "/login"
	BuyerDashboard = "/dashboard"
	MakerDashboard = "/maker-dashboard"
	NotFoundView   = "not_found"
	wildcardSuffix = "/*"
)

type rule struct {
	pattern string
	access  Access
	view    string
}

// Patterns ending in /* match the prefix and everything below it.
var table = []rule{
	{"/", Public, "home"},
	{"/about", Public, "about"},
	{"/contact", Public, "contact"},
	{"/pricing", Public, "pricing"},

	{"/privacy-policy", Legal, "privacy_policy"},
	{"/terms", Legal, "terms"},
	{"/refund-policy", Legal, "refund_policy"},
	{"/shipping-policy", Legal, "shipping_policy"},

	{"/login", GuestOnly, "login"},
	{"/signup", GuestOnly, "signup"},
	{"/signup/*", GuestOnly, "signup"},
	{"/forgot-password", GuestOnly, "forgot_password"},
	{"/forgot-password/*", GuestOnly, "forgot_password"},

	{"/profile", Authenticated, "profile"},
	{"/logout", Authenticated, "logout"},

	{"/dashboard", BuyerOnly, "buyer_dashboard"},
	{"/orders", BuyerOnly, "buyer_orders"},
	{"/projects", BuyerOnly, "buyer_projects"},
	{"/projects/new", BuyerOnly, "project_form"},
	{"/projects/*", BuyerOnly, "buyer_project"},
	{"/buyer/*", BuyerOnly, "buyer"},

	{"/maker-dashboard", MakerOnly, "maker_dashboard"},
	{"/company-profile", MakerOnly, "company_profile"},
	{"/subscription", MakerOnly, "subscription"},
	{"/subscription/*", MakerOnly, "subscription"},
	{"/open-projects/*", MakerOnly, "open_project"},
	{"/maker/*", MakerOnly, "maker"},
}

var exact, prefixed = func() (map[string]rule, []rule) {
	ex := map[string]rule{}
	var pre []rule
	for _, r := range table {
		if strings.HasSuffix(r.pattern, wildcardSuffix) {
			r.pattern = strings.TrimSuffix(r.pattern, "*")
			pre = append(pre, r)
			continue
		}
		ex[r.pattern] = r
	}
	return ex, pre
}()

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean("/" + p)
	return p
}

// Classify returns the access class of a path and the view it renders.
func Classify(p string) (Access, string) {
	p = normalize(p)
	if r, ok := exact[p]; ok {
		return r.access, r.view
	}
	best := rule{access: Unknown, view: NotFoundView}
	for _, r := range prefixed {
		if strings.HasPrefix(p, r.pattern) && len(r.pattern) > len(best.pattern) {
			best = r
		}
	}
	return best.access, best.view
}

// Dashboard is the landing page for a role.
func Dashboard(role models.Role) string {
	switch role {
	case models.RoleBuyer:
		return BuyerDashboard
	case models.RoleMaker:
		return MakerDashboard
	default:
		return LoginPath
	}
}

// Decide is a pure function of the path and the session view.
func Decide(p string, s session.View) Decision {
	access, view := Classify(p)
	render := Decision{Kind: Render, View: view}
	toLogin := Decision{Kind: Redirect, Location: LoginPath}

	switch access {
	case Public, Legal, Unknown:
		return render
	case GuestOnly:
		if s.Authenticated && s.Role.Valid() {
			return Decision{Kind: Redirect, Location: Dashboard(s.Role)}
		}
		return render
	case Authenticated:
		if !s.Authenticated {
			return toLogin
		}
		return render
	case BuyerOnly:
		if !s.Authenticated || s.Role != models.RoleBuyer {
			return toLogin
		}
		return render
	case MakerOnly:
		if !s.Authenticated || s.Role != models.RoleMaker {
			return toLogin
		}
		return render
	}
	return render
}
