package session

// Keys persisted in the key-value store.
const (
	KeyCurrentUser           = "currentUser"
	KeyUserSession           = "userSession"
	KeySessionExpiry         = "sessionExpiry"
	KeyLastAuthAction        = "lastAuthAction"
	KeySupabaseConnected     = "supabaseConnected"
	KeyLastConnectionAttempt = "lastConnectionAttempt"
	KeyLastConnectionError   = "lastConnectionError"
)

// sessionKeys are cleared together whenever a session ends.
var sessionKeys = []string{KeyCurrentUser, KeyUserSession, KeySessionExpiry}
