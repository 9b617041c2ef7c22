package entities

// EmailMessage is one outbound transactional email
type EmailMessage struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
	// Category tags the message at the provider, e.g. "welcome"
	Category string
}
