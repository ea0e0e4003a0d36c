package email

// New picks the Postmark sender when credentials are configured and falls
// back to the file-based DevSender otherwise.
func New(cfg Config) (Sender, error) {
	if cfg.UsePostmark() {
		return NewPostmarkClient(cfg)
	}
	if err := validateIdentity(cfg); err != nil {
		return nil, err
	}
	return NewDevSender(cfg.DevOutputDir), nil
}
