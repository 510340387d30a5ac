package models

// UpstreamConnection holds the address and sealed credentials of a
// monitoring API. Password fields are hex encoded AES-GCM parts.
type UpstreamConnection struct {
	ID                 string
	TenantID           string
	Name               string
	BaseURL            string
	Username           string
	PasswordCiphertext string
	PasswordIV         string
	PasswordTag        string
}
