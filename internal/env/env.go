package env

import (
	"os"
	"strings"

	"github.com/notflix/aiservice/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

// FromEnv reads the environment from AI_SERVICE_ENV, defaulting to development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.AIServiceEnv))
}

// Parse maps a free-form value onto a known environment.
func Parse(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "prod", "production":
		return Production
	case "test", "testing":
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
