package config

type SecurityLevel int

const (
	SecurityPublic  SecurityLevel = iota // No authentication
	SecurityWebhook                      // Gateway signature required
	SecurityAccess                       // Access token required
	SecurityAdmin                        // Access token with admin role required
)

// EndpointSecurityConfig maps HTTP route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	"Health":  SecurityPublic,
	"Metrics": SecurityPublic,

	"GatewayWebhook": SecurityWebhook,

	"SubmitContribution":   SecurityAccess,
	"RequestInstantPayout": SecurityAccess,
	"RetrySettlement":      SecurityAccess,
	"GetSettlement":        SecurityAccess,
	"FileDispute":          SecurityAccess,

	"TriggerManualPayout": SecurityAdmin,
	"ResolveDispute":      SecurityAdmin,
	"ListDisputes":        SecurityAdmin,
	"GetReserve":          SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}
