package clients

// DemoClient is the client the broker registers as. It holds no secret.
var DemoClient = &Client{
	ID:          "capital-planning-client",
	Type:        ClientTypePublic,
	Description: "Capital planning tool broker",
	Scopes:      []string{"assets:read", "risk:analyze", "investments:write"},
}
