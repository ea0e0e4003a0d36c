package mailer

// Config holds what the lifecycle emails link to and sign with.
type Config struct {
	AppName      string `env:"APP_NAME" envDefault:"SoberNest"`
	BaseURL      string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	SupportEmail string `env:"SUPPORT_EMAIL"`
}
