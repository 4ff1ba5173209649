package variant

import (
	"strings"

	"github.com/eugenenazirov/variant-matrix/internal/properties"
)

// Field names carried by a variant configuration.
const (
	FieldEnvironment    = "ENVIRONMENT"
	FieldAppName        = "APP_NAME"
	FieldServerURL      = "SERVER_URL"
	FieldSocketURL      = "SOCKET_URL"
	FieldAPIInternalURL = "API_INTERNAL_URL"
	FieldStoreID        = "STORE_ID"
	FieldStorePassword  = "STORE_PASSWORD"

	FieldDataDogClientToken   = "DATA_DOG_CLIENT_TOKEN"
	FieldDataDogApplicationID = "DATA_DOG_APPLICATION_ID"
	FieldAWSAccessKey         = "AWS_ACCESS_KEY"
	FieldAWSSecretKey         = "AWS_SECRET_KEY"
)

// SourceLiteral marks fields whose value is fixed by the generator rather than resolved.
const SourceLiteral = "literal"

// URL kinds resolved through Resolver.ResolveServerURL.
const (
	kindSocket      = "SOCKET"
	kindAPIInternal = "API_INTERNAL"
)

var secretFields = map[string]bool{
	FieldStorePassword:      true,
	FieldAWSSecretKey:       true,
	FieldDataDogClientToken: true,
}

// CommonFieldNames are resolved once per run and shared by every variant.
var CommonFieldNames = []string{
	FieldDataDogClientToken,
	FieldDataDogApplicationID,
	FieldAWSAccessKey,
	FieldAWSSecretKey,
}

// IsSecret reports whether a field must be masked when rendered.
func IsSecret(name string) bool {
	return secretFields[name]
}

// Environment is one of the fixed internal flavors.
type Environment string

const (
	Dev     Environment = "Dev"
	Qa      Environment = "Qa"
	Sandbox Environment = "Sandbox"
)

// Environments returns the fixed internal flavors in generation order.
func Environments() []Environment {
	return []Environment{Dev, Qa, Sandbox}
}

// ParseEnvironment maps a name to its canonical Environment case-insensitively.
// Unknown names are returned unchanged and rejected by Validate.
func ParseEnvironment(raw string) Environment {
	name := strings.TrimSpace(raw)
	for _, env := range Environments() {
		if strings.EqualFold(name, string(env)) {
			return env
		}
	}
	return Environment(name)
}

// Token is the upper-case form used in property keys and the ENVIRONMENT field.
func (e Environment) Token() string {
	return strings.ToUpper(string(e))
}

// Channel is the Staging/Production sub-dimension of a carrier.
//
// The property tokens differ on purpose: SERVER_URL and the generic URL keys use
// STAGING/PROD, while the ENVIRONMENT field uses STAGING/PRODUCTION.
type Channel struct {
	Name             string
	KeyToken         string
	EnvironmentValue string
	DisplaySuffix    string
}

var (
	Staging = Channel{
		Name:             "Staging",
		KeyToken:         "STAGING",
		EnvironmentValue: "STAGING",
		DisplaySuffix:    " - STG",
	}
	Production = Channel{
		Name:             "Production",
		KeyToken:         "PROD",
		EnvironmentValue: "PRODUCTION",
		DisplaySuffix:    " - PROD",
	}
)

// Channels returns the carrier channels in generation order.
func Channels() []Channel {
	return []Channel{Staging, Production}
}

// DefaultCarriers is the carrier list shipped with the app.
var DefaultCarriers = []string{
	"Verizon", "TMobile", "O2", "Boost", "VZW",
	"NZ", "US", "Optus", "Tesco", "RW",
	"Team", "Xfinity", "Digicel", "Nadiya", "Amtel", "aio",
}

// NormalizeCarrier strips underscores and lower-cases. Other punctuation is kept.
func NormalizeCarrier(carrier string) string {
	return strings.ToLower(strings.ReplaceAll(carrier, "_", ""))
}

// Kind distinguishes internal environment flavors from carrier flavors.
type Kind string

const (
	KindEnvironment Kind = "environment"
	KindCarrier     Kind = "carrier"
)

// Field is one resolved configuration value and where it came from.
type Field struct {
	Name   string
	Value  string
	Source string
}

func fieldFrom(name string, r properties.Resolved) Field {
	return Field{Name: name, Value: r.Value, Source: r.Source}
}

// Config is the resolved configuration of one flavor. It is built once by the
// Generator and exposes copies only.
type Config struct {
	flavor  string
	kind    Kind
	carrier string
	channel string
	fields  []Field
}

// Flavor is the variant identity name, e.g. "Dev" or "tmobileStaging".
func (c Config) Flavor() string { return c.flavor }

// Kind reports whether the flavor is an internal environment or a carrier channel.
func (c Config) Kind() Kind { return c.kind }

// Carrier is the carrier name as given, empty for environment flavors.
func (c Config) Carrier() string { return c.carrier }

// Channel is "Staging" or "Production", empty for environment flavors.
func (c Config) Channel() string { return c.channel }

// Fields returns the fields in a fixed order.
func (c Config) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// Value returns the value of a field and whether the field is present.
func (c Config) Value(name string) (string, bool) {
	for _, f := range c.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Has reports whether the field is present.
func (c Config) Has(name string) bool {
	_, ok := c.Value(name)
	return ok
}
