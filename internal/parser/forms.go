package parser

import (
	"strings"
)

// FormKind is the inferred purpose of a form.
type FormKind string

const (
	FormKindLogin    FormKind = "login"
	FormKindSignup   FormKind = "signup"
	FormKindSearch   FormKind = "search"
	FormKindContact  FormKind = "contact"
	FormKindPayment  FormKind = "payment"
	FormKindUpload   FormKind = "upload"
	FormKindComment  FormKind = "comment"
	FormKindSettings FormKind = "settings"
	FormKindGeneric  FormKind = "generic"
)

// DetectFormKind infers what a form is for from its fields and action.
func DetectFormKind(form Form) FormKind {
	inputNames := make([]string, 0, len(form.Fields))
	inputTypes := make(map[string]int)

	for _, f := range form.Fields {
		inputNames = append(inputNames, strings.ToLower(f.Name))
		inputTypes[f.Type]++
	}

	allNames := strings.Join(inputNames, " ")
	actionLower := strings.ToLower(form.Action)

	// Login form
	loginIndicators := []string{"login", "signin", "sign-in", "log-in", "auth"}
	if hasPassword(inputTypes) && countInputs(inputTypes) <= 4 {
		for _, ind := range loginIndicators {
			if strings.Contains(allNames, ind) || strings.Contains(actionLower, ind) {
				return FormKindLogin
			}
		}
		if strings.Contains(allNames, "password") &&
			(strings.Contains(allNames, "username") || strings.Contains(allNames, "email")) {
			return FormKindLogin
		}
	}

	// Signup form
	signupIndicators := []string{"signup", "register", "sign-up", "create", "join"}
	if hasPassword(inputTypes) && countInputs(inputTypes) > 3 {
		for _, ind := range signupIndicators {
			if strings.Contains(allNames, ind) || strings.Contains(actionLower, ind) {
				return FormKindSignup
			}
		}
		if strings.Contains(allNames, "confirm") || strings.Contains(allNames, "password2") {
			return FormKindSignup
		}
	}

	// Search form
	if inputTypes["search"] > 0 || strings.Contains(allNames, "search") ||
		strings.Contains(allNames, "query") || hasName(inputNames, "q") {
		return FormKindSearch
	}

	// Contact form
	contactIndicators := []string{"contact", "message", "inquiry", "feedback"}
	if inputTypes["textarea"] > 0 {
		for _, ind := range contactIndicators {
			if strings.Contains(allNames, ind) || strings.Contains(actionLower, ind) {
				return FormKindContact
			}
		}
	}

	// Payment form
	paymentIndicators := []string{"payment", "checkout", "card", "credit", "billing"}
	for _, ind := range paymentIndicators {
		if strings.Contains(allNames, ind) || strings.Contains(actionLower, ind) {
			return FormKindPayment
		}
	}

	if inputTypes["file"] > 0 || strings.EqualFold(form.Enctype, "multipart/form-data") {
		return FormKindUpload
	}

	if inputTypes["textarea"] > 0 && countInputs(inputTypes) <= 3 {
		if strings.Contains(allNames, "comment") || strings.Contains(actionLower, "comment") {
			return FormKindComment
		}
	}

	if strings.Contains(actionLower, "settings") || strings.Contains(actionLower, "profile") ||
		strings.Contains(actionLower, "preferences") {
		return FormKindSettings
	}

	return FormKindGeneric
}

// SampleData returns a plausible value for every named field, keyed by
// field name. Hidden fields keep their value.
func SampleData(form Form) map[string]string {
	data := make(map[string]string)

	for _, f := range form.Fields {
		if f.Name == "" || f.Disabled {
			continue
		}
		data[f.Name] = sampleValue(f)
	}

	return data
}

func sampleValue(f Field) string {
	nameLower := strings.ToLower(f.Name)

	switch {
	case f.Type == "hidden":
		return f.Value
	case f.Type == "email":
		return "test@example.com"
	case f.Type == "password":
		return "Password123!"
	case strings.Contains(nameLower, "name"):
		return "Test User"
	case f.Type == "tel" || strings.Contains(nameLower, "phone"):
		return "123-456-7890"
	case f.Type == "checkbox" || f.Type == "radio":
		if f.Value != "" {
			return f.Value
		}
		return "on"
	case f.Type == "select" && f.Value != "":
		return f.Value
	default:
		return "test_" + f.Name
	}
}

func hasPassword(types map[string]int) bool {
	return types["password"] > 0
}

func countInputs(types map[string]int) int {
	total := 0
	for t, count := range types {
		if t != "hidden" && t != "submit" && t != "button" {
			total += count
		}
	}
	return total
}

func hasName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
