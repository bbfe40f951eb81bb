package email

import "fmt"

// CodeMessage renders the subject and body for a one-time code. The purpose
// string varies the copy; the code presentation is identical everywhere so
// users learn to recognize it.
func CodeMessage(purpose, code string) (subject, htmlBody string) {
	subject = fmt.Sprintf("Your verification code to %s", purpose)
	htmlBody = fmt.Sprintf(`<html><body style="font-family: sans-serif">
<p>Use this code to %s:</p>
<p style="font-size: 28px; letter-spacing: 6px; font-weight: bold">%s</p>
<p>The code expires in 5 minutes. If you did not request it, ignore this message.</p>
</body></html>`, purpose, code)
	return subject, htmlBody
}
