package form

import (
	"time"

	"github.com/machmate/machmate-web/internal/models"
)

var (
	emailRule    = rule{"email", "required,email", "Enter a valid email address"}
	passwordRule = rule{"password", "required,min=6", "Password must be at least 6 characters"}
	otpRule      = rule{"otp", "required,len=6,numeric", "Enter the 6-digit code"}
)

var Login = &Flow{
	Name: "login",
	Steps: []Step{{
		Name:   "credentials",
		Fields: []string{"email", "password", "remember_me"},
		Validate: func(f Fields, _ time.Time) Errors {
			return check(f, emailRule, rule{"password", "required", "Password is required"})
		},
	}},
	Sensitive: []string{"password"},
}

var Signup = &Flow{
	Name: "signup",
	Steps: []Step{
		{
			Name:   "account",
			Fields: []string{"name", "email", "password", "confirm_password", "role"},
			Validate: func(f Fields, _ time.Time) Errors {
				errs := check(f,
					rule{"name", "required", "Name is required"},
					emailRule,
					passwordRule,
					rule{"role", "required,oneof=buyer maker", "Choose buyer or maker"},
				)
				confirm(errs, f, "confirm_password", "password", "Passwords do not match")
				return errs
			},
		},
		{
			Name:   "verify",
			Fields: []string{"otp"},
			Validate: func(f Fields, _ time.Time) Errors {
				return check(f, otpRule)
			},
		},
	},
	Sensitive: []string{"password", "confirm_password"},
}

var ForgotPassword = &Flow{
	Name: "forgot-password",
	Steps: []Step{
		{
			Name:   "email",
			Fields: []string{"email"},
			Validate: func(f Fields, _ time.Time) Errors {
				return check(f, emailRule)
			},
		},
		{
			Name:   "otp",
			Fields: []string{"otp"},
			Validate: func(f Fields, _ time.Time) Errors {
				return check(f, otpRule)
			},
		},
		{
			Name:   "reset",
			Fields: []string{"password", "confirm_password"},
			Validate: func(f Fields, _ time.Time) Errors {
				errs := check(f, passwordRule)
				confirm(errs, f, "confirm_password", "password", "Passwords do not match")
				return errs
			},
		},
	},
	Sensitive: []string{"password", "confirm_password"},
}

var Project = &Flow{
	Name: "project",
	Steps: []Step{{
		Name:   "details",
		Fields: []string{"name", "description", "max_price", "estimated_date", "address", "state", "city", "pdf_name", "pdf_size"},
		Validate: func(f Fields, now time.Time) Errors {
			errs := check(f,
				rule{"name", "required", "Project name is required"},
				rule{"description", "required", "Description is required"},
				rule{"max_price", "required", "Maximum price is required"},
				rule{"estimated_date", "required", "Estimated date is required"},
				rule{"address", "required", "Address is required"},
				rule{"state", "required", "State is required"},
				rule{"city", "required", "City is required"},
			)
			positiveDecimal(errs, f, "max_price", "Maximum price")
			notPastDate(errs, f, "estimated_date", now)
			optionalPDF(errs, f)
			return errs
		},
	}},
}

var Quotation = &Flow{
	Name: "quotation",
	Steps: []Step{{
		Name:   "quote",
		Fields: []string{"price", "description", "estimated_date", "pdf_name", "pdf_size"},
		Validate: func(f Fields, now time.Time) Errors {
			errs := check(f,
				rule{"price", "required", "Price is required"},
				rule{"description", "required", "Description is required"},
				rule{"estimated_date", "required", "Estimated date is required"},
			)
			positiveDecimal(errs, f, "price", "Price")
			notPastDate(errs, f, "estimated_date", now)
			optionalPDF(errs, f)
			return errs
		},
	}},
}

var CompanyProfile = &Flow{
	Name: "company-profile",
	Steps: []Step{
		{
			Name:   "company",
			Fields: []string{"company_name", "year_established"},
			Validate: func(f Fields, now time.Time) Errors {
				errs := check(f,
					rule{"company_name", "required", "Company name is required"},
					rule{"year_established", "required", "Year established is required"},
				)
				yearBetween(errs, f, "year_established", 1800, now)
				return errs
			},
		},
		{
			Name:   "location",
			Fields: []string{"address", "state", "city", "specializations", "website"},
			Validate: func(f Fields, _ time.Time) Errors {
				errs := check(f,
					rule{"address", "required", "Address is required"},
					rule{"state", "required", "State is required"},
					rule{"city", "required", "City is required"},
				)
				if len(SplitList(f["specializations"])) == 0 {
					errs["specializations"] = "Select at least one specialization"
				}
				optionalURL(errs, f, "website")
				return errs
			},
		},
	},
}

// ProfileFields prefills the company-profile flow from an existing profile.
func ProfileFields(p models.CompanyProfile) Fields {
	return Fields{
		"company_name":     p.CompanyName,
		"year_established": itoa(p.YearEstablished),
		"address":          p.Address,
		"state":            p.State,
		"city":             p.City,
		"specializations":  joinList(p.Specializations),
		"website":          p.Website,
	}
}

// ProjectFields prefills the project flow when editing.
func ProjectFields(p models.Project) Fields {
	return Fields{
		"name":           p.Name,
		"description":    p.Description,
		"max_price":      p.MaxPrice.String(),
		"estimated_date": p.EstimatedDate.String(),
		"address":        p.Address,
		"state":          p.State,
		"city":           p.City,
	}
}
