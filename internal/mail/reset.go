package mail

import "fmt"

// PasswordResetMessage builds the subject and HTML body for a password-reset
// email. rawToken is the unhashed reset token; it appears only inside the
// link and must not be logged by callers.
func PasswordResetMessage(clientURL, rawToken string) (subject, html string) {
	resetURL := fmt.Sprintf("%s/reset-password/%s", clientURL, rawToken)

	subject = "Password Reset Request"
	html = fmt.Sprintf(`<h2>Password Reset</h2>
<p>You requested a password reset. Click the link below to set a new password:</p>
<p><a href="%s">%s</a></p>
<p>This link expires in 1 hour.</p>
<p>If you did not request this, please ignore this email.</p>`, resetURL, resetURL)

	return subject, html
}
