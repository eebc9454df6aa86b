package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Environment variables carrying the Betfair account credentials. Session
// management itself is handled by the exchange connection collaborator; the
// recorder only resolves and forwards these values.
const (
	EnvUsername    = "BETFAIR_USERNAME"
	EnvPassword    = "BETFAIR_PASSWORD"
	EnvAppKey      = "BETFAIR_APP_KEY"
	EnvCertFile    = "BETFAIR_CERT_FILE"
	EnvCertKeyFile = "BETFAIR_CERT_KEY_FILE"
)

// Credentials groups the Betfair account credentials as one explicit value
// so the pipeline entry points never reach into ambient process state.
type Credentials struct {
	Username    string
	Password    string
	AppKey      string
	CertFile    string
	CertKeyFile string
}

// CredentialsFromEnv resolves the credentials from the environment. All five
// variables must be present for a live exchange session; callers replaying a
// recorded stream may ignore the error.
func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		Username:    os.Getenv(EnvUsername),
		Password:    os.Getenv(EnvPassword),
		AppKey:      os.Getenv(EnvAppKey),
		CertFile:    os.Getenv(EnvCertFile),
		CertKeyFile: os.Getenv(EnvCertKeyFile),
	}

	var missing []string
	for env, value := range map[string]string{
		EnvUsername:    creds.Username,
		EnvPassword:    creds.Password,
		EnvAppKey:      creds.AppKey,
		EnvCertFile:    creds.CertFile,
		EnvCertKeyFile: creds.CertKeyFile,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return creds, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return creds, nil
}

// Complete reports whether every credential field is set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != "" && c.AppKey != "" &&
		c.CertFile != "" && c.CertKeyFile != ""
}
