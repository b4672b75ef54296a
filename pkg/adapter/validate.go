package adapter

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// ValidateHost accepts an IP address or a DNS name.
func ValidateHost(path *field.Path, host string) field.ErrorList {
	var allErrs field.ErrorList
	if host == "" {
		return append(allErrs, field.Required(path, ""))
	}
	if len(validation.IsValidIP(host)) == 0 {
		return allErrs
	}
	for _, msg := range validation.IsDNS1123Subdomain(strings.ToLower(host)) {
		allErrs = append(allErrs, field.Invalid(path, host, "must be an IP address or host name: "+msg))
	}
	return allErrs
}
