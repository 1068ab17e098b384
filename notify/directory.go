package notify

import "context"

// StaticDirectory is an env-configured Directory: a fixed provider contact
// table and admin list. The platform's user service owns the authoritative
// records; this core only needs resolvable emails.
type StaticDirectory struct {
	providers map[string]string
	admins    []string
}

// NewStaticDirectory builds a directory from a providerID->email map and a
// list of admin emails.
func NewStaticDirectory(providers map[string]string, admins []string) *StaticDirectory {
	if providers == nil {
		providers = map[string]string{}
	}
	return &StaticDirectory{providers: providers, admins: admins}
}

// ProviderEmail resolves a provider id to its contact email.
func (d *StaticDirectory) ProviderEmail(_ context.Context, providerID string) (string, bool) {
	email, ok := d.providers[providerID]
	return email, ok && email != ""
}

// AdminEmails returns all configured admin emails.
func (d *StaticDirectory) AdminEmails(_ context.Context) []string {
	return d.admins
}
