package notifier

// Notifier defines a fire-and-forget notification sink. Implementations must
// never fail the calling settlement operation.
type Notifier interface {
	Notify(userID, notificationType, title, body string, metadata map[string]string)
}
