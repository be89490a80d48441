package realtime

// Named realtime streams.
const (
	// StreamContactPermissions carries request, approval, rejection and revocation events to the
	// user they concern.
	StreamContactPermissions = "contact_permissions"
)

// DefaultStreams are subscribed when a client does not name any.
var DefaultStreams = []string{StreamContactPermissions}
