package model

import "time"

// ToolKind names an external tracking tool. Adapters are registered by kind.
type ToolKind string

const (
	KindJira        ToolKind = "Jira"
	KindTrello      ToolKind = "Trello"
	KindOpenProject ToolKind = "OpenProject"
	KindRally       ToolKind = "Rally"
	KindGoogleTasks ToolKind = "GoogleTasks"
	KindTaskwarrior ToolKind = "Taskwarrior"
)

type ConnectionStatus string

const (
	StatusPending      ConnectionStatus = "Pending"
	StatusConnected    ConnectionStatus = "Connected"
	StatusDisconnected ConnectionStatus = "Disconnected"
)

// Connection holds the endpoint and credentials for one configured tool.
type Connection struct {
	ID        string           `json:"id"`
	Kind      ToolKind         `json:"tool"`
	BaseURL   string           `json:"url"`
	Principal string           `json:"username"`
	Password  string           `json:"password,omitempty"`
	APIKey    string           `json:"apiKey,omitempty"`
	Vendor    string           `json:"vendor,omitempty"`
	Status    ConnectionStatus `json:"status"`

	LastTestedAt time.Time `json:"lastTestedAt,omitzero"`
	LastError    string    `json:"lastError,omitempty"`
}

// Secret returns the credential sent alongside the principal. API keys win over passwords.
func (c Connection) Secret() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return c.Password
}

// Redacted returns a copy safe to hand to untrusted callers.
func (c Connection) Redacted() Connection {
	if c.Password != "" {
		c.Password = redactedSecret
	}
	if c.APIKey != "" {
		c.APIKey = redactedSecret
	}
	return c
}

const redactedSecret = "********"
